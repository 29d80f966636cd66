package mqtt

import (
	"context"
	"time"

	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/monitor"
)

// Source yields the averages collected since the previous call.
type Source interface {
	Drain(at time.Time) monitor.Averages
}

// ReadingsPublisher periodically drains a Source and publishes the averages.
type ReadingsPublisher struct {
	client   Client
	source   Source
	prefix   string
	deviceID string
	interval time.Duration
	now      func() time.Time
	log      logger.Logger
}

// NewReadingsPublisher creates a publisher for source. deviceID is reported in every payload.
func NewReadingsPublisher(client Client, source Source, prefix, deviceID string, interval time.Duration) *ReadingsPublisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReadingsPublisher{
		client:   client,
		source:   source,
		prefix:   prefix,
		deviceID: deviceID,
		interval: interval,
		now:      time.Now,
		log:      GetLogger().With(logger.String("device_id", deviceID)),
	}
}

// Run publishes every interval until ctx is cancelled.
func (p *ReadingsPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("readings publisher started", logger.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("readings publisher stopped")
			return nil
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil {
				p.log.Warn("failed to publish readings", logger.Error(err))
			}
		}
	}
}

// PublishOnce drains the source and publishes one window. While the client is
// disconnected nothing is drained, so readings accumulate until the next
// successful send. It returns the number of messages delivered.
func (p *ReadingsPublisher) PublishOnce(ctx context.Context) (int, error) {
	if !p.client.IsConnected() {
		p.log.Debug("not connected, keeping readings")
		return 0, nil
	}

	msgs, err := BuildMessages(p.prefix, p.deviceID, p.source.Drain(p.now()))
	if err != nil {
		return 0, err
	}

	var firstErr error
	sent := 0
	for _, m := range msgs {
		if err := p.client.Publish(ctx, m.Topic, m.Payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}
