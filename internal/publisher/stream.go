package publisher

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/PstasDev/biliard-backend/pkg/models"
)

// StreamPublisher mirrors committed match deltas to Redis Streams so
// downstream consumers (stats, archival) can follow live matches without a
// WebSocket. Mirroring is best-effort: a failure is logged and never fails
// or delays the mutation that produced the delta.
type StreamPublisher struct {
	client *redis.Client
}

// NewStreamPublisher creates a stream publisher.
func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{client: client}
}

// PublishDelta writes the delta to the per-match stream and the global one.
func (p *StreamPublisher) PublishDelta(ctx context.Context, matchID int64, delta models.Delta) {
	values := map[string]interface{}{
		"match_id": strconv.FormatInt(matchID, 10),
		"type":     delta.Kind,
		"seq":      strconv.FormatUint(delta.Seq, 10),
		"data":     string(delta.Data),
	}

	streamKey := fmt.Sprintf("match.deltas.%d", matchID)
	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: streamKey, Values: values}).Err(); err != nil {
		fmt.Printf("failed to publish to stream %s: %v\n", streamKey, err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: "match.deltas", Values: values}).Err(); err != nil {
		fmt.Printf("failed to publish to global delta stream: %v\n", err)
	}
}
