package activity

import (
	"context"

	"bumpcontrol/internal/models"
)

const DefaultQueue = "bump.activity"

// Publisher is the message bus the feed is mirrored to
type Publisher interface {
	Publish(ctx context.Context, queue string, message interface{}) error
}

type BusSink struct {
	pub   Publisher
	queue string
}

func NewBusSink(pub Publisher, queue string) *BusSink {
	if queue == "" {
		queue = DefaultQueue
	}
	return &BusSink{pub: pub, queue: queue}
}

func (b *BusSink) Append(ctx context.Context, entry *models.ActivityLog) error {
	return b.pub.Publish(ctx, b.queue, entry)
}
