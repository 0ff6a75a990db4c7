// Package idempotency stores the first response to a keyed write so retries
// of the same request can be answered without repeating the write.
package idempotency

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
)

var ErrNotFound = errors.New("idempotency record not found")

type Record struct {
	State       State  `json:"state"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type Store interface {
	// Reserve marks key pending for ttl and reports whether this caller won it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}
