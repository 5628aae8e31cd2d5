package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tandemhq/tandem-api/internal/modules/broadcast"
)

type RecordedUpdate struct {
	RecipientID uuid.UUID
	Update      broadcast.Update
}

// FakeBroadcaster records published updates. Services dispatch broadcasts on
// their own goroutines, so tests use Wait to synchronize.
type FakeBroadcaster struct {
	mu      sync.Mutex
	updates []RecordedUpdate
	ch      chan RecordedUpdate
}

func NewFakeBroadcaster() *FakeBroadcaster {
	return &FakeBroadcaster{ch: make(chan RecordedUpdate, 64)}
}

func (f *FakeBroadcaster) Publish(ctx context.Context, recipientID uuid.UUID, update broadcast.Update) {
	recorded := RecordedUpdate{RecipientID: recipientID, Update: update}

	f.mu.Lock()
	f.updates = append(f.updates, recorded)
	f.mu.Unlock()

	select {
	case f.ch <- recorded:
	default:
	}
}

// Wait blocks until one published update arrives or the timeout expires.
func (f *FakeBroadcaster) Wait(t *testing.T, timeout time.Duration) RecordedUpdate {
	t.Helper()

	select {
	case recorded := <-f.ch:
		return recorded
	case <-time.After(timeout):
		t.Fatalf("no broadcast received within %v", timeout)
		return RecordedUpdate{}
	}
}

func (f *FakeBroadcaster) Updates() []RecordedUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedUpdate, len(f.updates))
	copy(out, f.updates)
	return out
}
