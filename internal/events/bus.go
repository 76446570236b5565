// Package events carries recorded clicks from the redirect path to asynchronous consumers
// and forwards analytics events to the external measurement sink.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// TopicClicks receives one message per committed click.
const TopicClicks = "clicks.recorded"

// ClickRecorded is published after the click transaction commits.
type ClickRecorded struct {
	EventID      uint      `json:"event_id"`
	ShortCode    string    `json:"short_code"`
	CampaignName string    `json:"campaign_name"`
	CampaignType string    `json:"campaign_type"`
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip_address"`
	Referrer     string    `json:"referrer"`
	DeviceType   string    `json:"device_type"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	Country      string    `json:"country"`
	State        string    `json:"state"`
	City         string    `json:"city"`
	UTMSource    string    `json:"utm_source,omitempty"`
	UTMMedium    string    `json:"utm_medium,omitempty"`
	UTMCampaign  string    `json:"utm_campaign,omitempty"`
	ClickedAt    time.Time `json:"clicked_at"`
}

// ClickHandler consumes one click. Returned errors are logged; the message is still acked
// since consumers are best-effort.
type ClickHandler func(ctx context.Context, click ClickRecorded) error

// Bus is an in-process pub/sub built on watermill's gochannel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: int64(bufferSize),
		}, newZapAdapter(logger)),
		logger: logger,
	}
}

// PublishClick does not wait for subscribers.
func (b *Bus) PublishClick(ctx context.Context, click ClickRecorded) error {
	payload, err := json.Marshal(click)
	if err != nil {
		return fmt.Errorf("failed to encode click: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("short_code", click.ShortCode)
	if err := b.pubsub.Publish(TopicClicks, msg); err != nil {
		return fmt.Errorf("failed to publish click: %w", err)
	}
	return nil
}

// SubscribeClicks starts a goroutine that feeds every click to handler until ctx is done or
// the bus is closed.
func (b *Bus) SubscribeClicks(ctx context.Context, name string, handler ClickHandler) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicClicks)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", name, err)
	}

	log := b.logger.With(zap.String("subscriber", name))
	go func() {
		for msg := range messages {
			var click ClickRecorded
			if err := json.Unmarshal(msg.Payload, &click); err != nil {
				log.Error("Failed to decode click message", zap.String("message_uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			// The publishing request may already be finished; handlers get a detached context.
			if err := handler(context.WithoutCancel(msg.Context()), click); err != nil {
				log.Warn("Click handler failed",
					zap.String("short_code", click.ShortCode),
					zap.String("session_id", click.SessionID),
					zap.Error(err))
			}
			msg.Ack()
		}
		log.Debug("Click subscription closed")
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
