// Package idempotency remembers which events a consumer already handled so
// at-least-once delivery applies each one once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/retailops-backend/pkg/instance"
	"github.com/angelmondragon/retailops-backend/pkg/redis"
)

var (
	errNoConsumer = errors.New("consumer name is required")
	errNoEventID  = errors.New("event id is required")
)

// Manager keeps one marker per (consumer, event id) under
// ro:idempotency:evt:processed:<consumer>:<event_id>. A zero ttl keeps
// markers forever.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed places the marker and reports whether one was
// already there.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	marked, err := m.store.SetNX(ctx, key, m.markerValue(), m.ttl)
	return !marked, err
}

// Delete clears the marker so a failed delivery can be processed again.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Once runs fn unless the event was already marked. A failing fn releases the
// marker again. The bool reports whether fn ran.
func (m *Manager) Once(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (ran bool, err error) {
	seen, err := m.CheckAndMarkProcessed(ctx, consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		return false, nil
	}
	if err = fn(ctx); err == nil {
		return true, nil
	}
	if delErr := m.Delete(context.WithoutCancel(ctx), consumer, eventID); delErr != nil {
		err = errors.Join(err, fmt.Errorf("release idempotency marker: %w", delErr))
	}
	return true, err
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer, eventID = strings.TrimSpace(consumer), strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", errNoConsumer
	case eventID == "":
		return "", errNoEventID
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}

// markerValue records which process claimed the event and when.
func (m *Manager) markerValue() string {
	return instance.ID() + "@" + m.now().UTC().Format(time.RFC3339)
}
