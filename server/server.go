// Package server exposes the chat service over HTTP: JSON endpoints for
// blocking turns and thread access, and server-sent events for streaming
// turns.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shoplight-ai/campaignchat/chat"
	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
	streamx "github.com/shoplight-ai/campaignchat/pkg/stream"
	"github.com/shoplight-ai/campaignchat/store"
)

// Config carries the HTTP listener settings.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	JWTSecret       string        `envconfig:"JWT_SECRET" split_words:"true" required:"true"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" split_words:"true" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

// ChatService is the surface the HTTP layer needs from the chat package.
type ChatService interface {
	Send(ctx context.Context, in chat.SendInput) (*chat.SendResult, error)
	SendStream(ctx context.Context, in chat.SendInput) (*streamx.Stream[chat.Event], error)
	ListThreads(ctx context.Context, userID uuid.UUID) ([]store.ChatThread, error)
	GetThread(ctx context.Context, userID, threadID uuid.UUID) (*store.ChatThread, []store.ChatMessage, error)
}

// Server wraps a gin engine bound to one chat service.
type Server struct {
	conf   Config
	svc    ChatService
	engine *gin.Engine
	log    zerolog.Logger
}

func New(conf Config, svc ChatService) *Server {
	s := &Server{
		conf: conf,
		svc:  svc,
		log:  logx.Component("server"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     conf.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := engine.Group("/", authMiddleware(conf.JWTSecret))
	api.POST("/chat", s.postChat)
	api.POST("/chat/stream", s.postChatStream)
	api.GET("/chat/threads", s.getThreads)
	api.GET("/chat/threads/:threadId", s.getThread)

	s.engine = engine
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.conf.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.conf.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.conf.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type sendRequest struct {
	Content  string     `json:"content" binding:"required"`
	ThreadID *uuid.UUID `json:"thread_id"`
}

func (s *Server) postChat(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	res, err := s.svc.Send(c.Request.Context(), chat.SendInput{
		UserID:   userID(c),
		ThreadID: req.ThreadID,
		Message:  req.Content,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) postChatStream(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	events, err := s.svc.SendStream(c.Request.Context(), chat.SendInput{
		UserID:   userID(c),
		ThreadID: req.ThreadID,
		Message:  req.Content,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer events.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			s.log.Error().Err(err).Msg("stream turn failed")
			c.SSEvent("error", gin.H{"error": "agent run failed"})
			return false
		}
		c.SSEvent("message", ev)
		return true
	})
}

func (s *Server) getThreads(c *gin.Context) {
	threads, err := s.svc.ListThreads(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (s *Server) getThread(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("threadId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	thread, messages, err := s.svc.GetThread(c.Request.Context(), userID(c), threadID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread, "messages": messages})
}

func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrThreadNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
