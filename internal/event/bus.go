package event

import (
	"context"
	"encoding/json"

	"IELTS-Exam-Runtime/internal/utils"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const NoticeTopic = "exam.notices"

// Bus fans notices out to every subscriber over an in-process pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	logger = utils.OrNop(logger).Named("notice_bus")
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, newZapAdapter(logger)),
		logger: logger,
	}
}

// Notify never blocks the caller on slow subscribers.
func (b *Bus) Notify(n Notice) {
	payload, err := json.Marshal(n)
	if err != nil {
		b.logger.Warn("notice could not be encoded", zap.Error(err))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(n.Kind))
	if err := b.pubsub.Publish(NoticeTopic, msg); err != nil {
		b.logger.Warn("notice publish failed", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

// Subscribe streams notices until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Notice, error) {
	msgs, err := b.pubsub.Subscribe(ctx, NoticeTopic)
	if err != nil {
		return nil, err
	}
	out := make(chan Notice, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var n Notice
			if err := json.Unmarshal(msg.Payload, &n); err != nil {
				b.logger.Warn("dropping malformed notice", zap.Error(err))
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

type zapAdapter struct {
	logger *zap.Logger
}

func newZapAdapter(logger *zap.Logger) watermill.LoggerAdapter {
	return zapAdapter{logger: logger}
}

func fieldsOf(f watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(fieldsOf(fields), zap.Error(err))...)
}

func (a zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, fieldsOf(fields)...)
}

func (a zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, fieldsOf(fields)...)
}

func (a zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, fieldsOf(fields)...)
}

func (a zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zapAdapter{logger: a.logger.With(fieldsOf(fields)...)}
}
