// Package store journals deployment records so interrupted runs can resume
// and past runs can be listed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/hoist/pkg/types"
)

// ErrNotFound is returned when no record exists.
var ErrNotFound = errors.New("record not found")

// Store persists deployment records and their history.
type Store interface {
	// Open initializes and opens the store.
	Open(path string) error

	// Close closes the store and releases resources.
	Close() error

	// Get returns the latest record for a service in an environment.
	Get(ctx context.Context, environment, service string) (*types.Deployment, error)

	// Put stores d as the latest record and appends it to the history.
	Put(ctx context.Context, d *types.Deployment) error

	// List returns the latest record of every service in environment.
	// An empty environment lists all.
	List(ctx context.Context, environment string) ([]*types.Deployment, error)

	// GetHistory returns all recorded versions, newest first.
	GetHistory(ctx context.Context, environment, service string) ([]HistoricalVersion, error)
}

// HistoricalVersion represents a historical version of a record.
type HistoricalVersion struct {
	// Version is the version identifier.
	Version string

	// Timestamp is when this version was written.
	Timestamp time.Time

	Deployment types.Deployment
}
