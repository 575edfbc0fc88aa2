// Package kafka publishes redemption events with franz-go.
package kafka

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/redemption"
	"github.com/xenking/coupon-engine/internal/wire"
)

// EventRedeemed is the event-type header value of redemption records.
const EventRedeemed = "coupon.redeemed"

// Producer is the part of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

var _ redemption.Publisher = (*Publisher)(nil)

// Publisher writes one record per redemption, keyed by coupon code so all
// events for a coupon land in the same partition.
type Publisher struct {
	producer Producer
	topic    string
}

// NewPublisher returns a Publisher producing to topic.
func NewPublisher(producer Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) PublishRedeemed(ctx context.Context, r *redemption.Redemption) error {
	rec := &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(r.Code),
		Value:     wire.MarshalRedemption(r),
		Timestamp: r.RedeemedAt,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(EventRedeemed)},
			{Key: "redemption-id", Value: []byte(r.ID)},
		},
	}
	if err := p.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return errors.Wrapf(err, "produce to %s", p.topic)
	}
	return nil
}

// NewClient connects a producer client to brokers.
func NewClient(brokers []string, lg *zap.Logger) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.WithLogger(kgoLogger{lg: lg}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka client")
	}
	return client, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)

	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return errors.Wrapf(err, "create topic %s", topic)
	}
	for _, detail := range resp {
		if detail.Err != nil && !errors.Is(detail.Err, kerr.TopicAlreadyExists) {
			return errors.Wrapf(detail.Err, "create topic %s", detail.Topic)
		}
	}

	zctx.From(ctx).Info("Kafka topic ensured", zap.String("topic", topic))
	return nil
}

// kgoLogger routes franz-go client logs to zap.
type kgoLogger struct {
	lg *zap.Logger
}

func (l kgoLogger) Level() kgo.LogLevel {
	if l.lg.Core().Enabled(zap.DebugLevel) {
		return kgo.LogLevelDebug
	}
	return kgo.LogLevelInfo
}

func (l kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	switch level {
	case kgo.LogLevelError:
		l.lg.Error(msg, fields...)
	case kgo.LogLevelWarn:
		l.lg.Warn(msg, fields...)
	case kgo.LogLevelInfo:
		l.lg.Info(msg, fields...)
	default:
		l.lg.Debug(msg, fields...)
	}
}
