package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/coupon-engine/internal/domain/redemption"
	"github.com/xenking/coupon-engine/internal/wire"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func testRedemption() *redemption.Redemption {
	return &redemption.Redemption{
		ID:             "r-1",
		CouponID:       "c-1",
		Code:           "SAVE20",
		PurchaseAmount: decimal.NewFromInt(100),
		Discount:       decimal.NewFromInt(20),
		FinalPrice:     decimal.NewFromInt(80),
		Reference:      "order-1",
		RedeemedAt:     time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishRedeemed(t *testing.T) {
	prod := &fakeProducer{}
	p := NewPublisher(prod, "coupon-redemptions")

	r := testRedemption()
	require.NoError(t, p.PublishRedeemed(context.Background(), r))
	require.Len(t, prod.records, 1)

	rec := prod.records[0]
	assert.Equal(t, "coupon-redemptions", rec.Topic)
	assert.Equal(t, []byte("SAVE20"), rec.Key)
	assert.Equal(t, r.RedeemedAt, rec.Timestamp)
	assert.Contains(t, rec.Headers, kgo.RecordHeader{Key: "event-type", Value: []byte(EventRedeemed)})

	decoded, err := wire.UnmarshalRedemption(rec.Value)
	require.NoError(t, err)
	assert.Equal(t, r.ID, decoded.ID)
	assert.True(t, r.FinalPrice.Equal(decoded.FinalPrice))
}

func TestPublishRedeemed_Error(t *testing.T) {
	prod := &fakeProducer{err: errors.New("not leader for partition")}
	p := NewPublisher(prod, "coupon-redemptions")

	err := p.PublishRedeemed(context.Background(), testRedemption())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produce to coupon-redemptions")
}

func TestKgoLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := kgoLogger{lg: zap.New(core)}

	assert.Equal(t, kgo.LogLevelDebug, l.Level())

	l.Log(kgo.LogLevelWarn, "metadata refresh failed", "broker", "b1", "err", "timeout")
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "b1", entries[0].ContextMap()["broker"])
}
