// Package store provides the auction session table for the OpenLot
// marketplace. The auction engine depends only on the SessionStore
// interface, so single-node deployments can keep the in-memory form while
// multi-instance deployments swap in a shared backend.
//
// Known limitation: with the in-memory implementation the session table is
// process-local. ListActive and ListHistory are only consistent within one
// process; multiple instances will each see their own active-auction list
// unless the store is externalized.
package store

import (
	"context"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// SessionStore is the keyed table of auction sessions.
type SessionStore interface {
	// CreateSession inserts a new session. Fails if the id already exists.
	CreateSession(ctx context.Context, session *models.AuctionSession) error

	// GetSession returns the session by id, or *ErrNotFound.
	GetSession(ctx context.Context, id string) (*models.AuctionSession, error)

	// UpdateSession replaces an existing session. Fails once the stored
	// session is terminal: terminal sessions are immutable.
	UpdateSession(ctx context.Context, session *models.AuctionSession) error

	// ListActive returns non-terminal sessions for a workspace.
	ListActive(ctx context.Context, workspace string) ([]models.AuctionSession, error)

	// ListHistory returns COMPLETED sessions for a workspace, newest first,
	// capped at limit (0 means no cap).
	ListHistory(ctx context.Context, workspace string, limit int) ([]models.AuctionSession, error)
}

// ErrNotFound is returned when a requested session does not exist.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return "auction session not found: " + e.ID
}

// IsNotFound reports whether err is a session lookup miss.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
