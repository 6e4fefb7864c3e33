// Package streamx provides a bounded, pull-based stream between a single
// producer goroutine and a single consumer. Closing the consumer side
// cancels the producer, which is how client disconnects propagate back to
// in-flight model inference.
package streamx

import (
	"context"
	"io"
	"sync"
)

const defaultBuffer = 16

// Stream carries values of type T from one producer to one consumer.
// The producer calls Push for each value and Finish exactly once when done;
// the consumer calls Recv until io.EOF (or a terminal error) and Close when
// it stops caring.
type Stream[T any] struct {
	values chan T

	finishOnce sync.Once
	err        error
	done       chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	cancel    context.CancelFunc
}

// New creates a stream. cancel, if non-nil, is invoked when the consumer
// closes the stream; wire it to the producer's context.
func New[T any](cancel context.CancelFunc) *Stream[T] {
	return &Stream[T]{
		values: make(chan T, defaultBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		cancel: cancel,
	}
}

// Push hands a value to the consumer, blocking when the buffer is full.
// It reports false once the consumer has closed the stream; the producer
// should stop producing.
func (s *Stream[T]) Push(v T) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.values <- v:
		return true
	case <-s.closed:
		return false
	}
}

// Finish marks the producer side complete. A nil err yields io.EOF from
// Recv after buffered values drain; a non-nil err is returned as the
// terminal error. Only the first call has any effect.
func (s *Stream[T]) Finish(err error) {
	s.finishOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Recv returns the next value. After the producer finishes it drains any
// buffered values, then returns the terminal error (io.EOF on success).
func (s *Stream[T]) Recv() (T, error) {
	var zero T
	select {
	case v := <-s.values:
		return v, nil
	case <-s.done:
		// drain values pushed before Finish
		select {
		case v := <-s.values:
			return v, nil
		default:
		}
		if s.err != nil {
			return zero, s.err
		}
		return zero, io.EOF
	}
}

// Close abandons the stream from the consumer side and cancels the
// producer. Safe to call multiple times and after Recv returned io.EOF.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.cancel != nil {
			s.cancel()
		}
	})
}
