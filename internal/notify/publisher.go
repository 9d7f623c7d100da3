// Package notify pushes merged-collection change events to interested consumers.
package notify

import (
	"context"
	"time"
)

// Change tells consumers that a user's merged calendar view must be re-rendered.
type Change struct {
	UserID string    `json:"user_id"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
	Close() error
}

// Nop discards every change.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }
func (Nop) Close() error                          { return nil }
