package contract

import "context"

// StoreDataGateway supplies the point-in-time snapshot the generator agent
// consumes through its tool call. A (nil, nil) return means "insufficient
// data" and is a designed outcome, not an error.
type StoreDataGateway interface {
	FetchSnapshot(ctx context.Context, userID string) (*Snapshot, error)
}
