package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TypeGamificationUpdate = "gamificationUpdate"
	TypeJourneyUpdate      = "journeyUpdate"
)

// Update is the payload fanned out to a user's live sessions.
type Update struct {
	Type string      `json:"type"`
	Body interface{} `json:"body"`
}

// Broadcaster delivers a change notification to all currently-connected
// sessions of one user. Delivery is best-effort and at-most-once: sessions
// not connected at publish time receive nothing, and failures never
// propagate to the caller. Implementations must not be invoked while holding
// any store-serialization lock.
type Broadcaster interface {
	Publish(ctx context.Context, recipientID uuid.UUID, update Update)
}

// ChannelFor returns the per-user pub/sub channel name. The WebSocket
// delivery edge subscribes to the same channel.
func ChannelFor(recipientID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", recipientID.String())
}

type redisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster publishes updates to the recipient's Redis channel.
// A nil client yields a broadcaster that drops everything, which keeps
// local setups without Redis working.
func NewRedisBroadcaster(client *redis.Client) Broadcaster {
	return &redisBroadcaster{client: client}
}

func (b *redisBroadcaster) Publish(ctx context.Context, recipientID uuid.UUID, update Update) {
	if b.client == nil {
		return
	}

	payload, err := json.Marshal(update)
	if err != nil {
		log.Printf("broadcast: failed to marshal %s update for user %s: %v", update.Type, recipientID, err)
		return
	}

	if err := b.client.Publish(ctx, ChannelFor(recipientID), payload).Err(); err != nil {
		// Swallowed: the authoritative state change already committed
		log.Printf("broadcast: failed to publish %s update for user %s: %v", update.Type, recipientID, err)
	}
}
