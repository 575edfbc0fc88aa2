package redemption

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const instrumentationName = "github.com/xenking/coupon-engine/internal/domain/redemption"

// QuoteRequest asks what a coupon would do to a purchase. At overrides the
// service clock when set.
type QuoteRequest struct {
	Code   string
	Amount float64
	At     *time.Time
}

// Quote is a validation outcome together with the coupon it was computed for.
type Quote struct {
	Coupon *coupon.Coupon
	Result coupon.Result
	At     time.Time
}

// RedeemRequest holds the input for applying a coupon to a purchase.
type RedeemRequest struct {
	Code      string
	Amount    float64
	Reference string
}

// Service looks coupons up, runs them through the validator and, on
// redemption, records usage. The validator itself stays free of I/O.
type Service struct {
	coupons     coupon.Repository
	redemptions Repository
	publisher   Publisher
	now         func() time.Time

	tracer      trace.Tracer
	validations metric.Int64Counter
	redeemed    metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the redemption event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(instrumentationName)
		s.initMeters(mp)
	}
}

// NewService creates a redemption Service with the required dependencies.
func NewService(coupons coupon.Repository, redemptions Repository, opts ...Option) *Service {
	s := &Service{
		coupons:     coupons,
		redemptions: redemptions,
		now:         time.Now,
		tracer:      tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	s.initMeters(metricnoop.NewMeterProvider())
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) initMeters(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)

	// Instrument creation only fails on invalid names; fall back to noop so
	// a telemetry problem never blocks checkout.
	var err error
	if s.validations, err = meter.Int64Counter("coupon.validations",
		metric.WithDescription("Coupon validations by outcome"),
	); err != nil {
		s.validations, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("coupon.validations")
	}
	if s.redeemed, err = meter.Int64Counter("coupon.redemptions",
		metric.WithDescription("Completed coupon redemptions"),
	); err != nil {
		s.redeemed, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("coupon.redemptions")
	}
}

// Quote resolves the coupon and validates it against the amount without
// changing any state. It returns coupon.ErrNotFound for unknown codes.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	code := coupon.NormalizeCode(req.Code)
	ctx, span := s.tracer.Start(ctx, "redemption.Quote",
		trace.WithAttributes(attribute.String("coupon.code", code)),
	)
	defer span.End()

	c, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			span.SetAttributes(attribute.String("coupon.outcome", "not_found"))
			return nil, coupon.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, errors.Wrap(err, "lookup coupon")
	}

	at := s.now()
	if req.At != nil {
		at = *req.At
	}

	result := coupon.Validate(c, req.Amount, at)

	outcome := "applied"
	if rej, ok := result.(coupon.Rejected); ok {
		outcome = string(rej.Kind)
	}
	span.SetAttributes(attribute.String("coupon.outcome", outcome))
	s.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return &Quote{Coupon: c, Result: result, At: at}, nil
}

// Redeem validates the coupon at the current time and, when it applies,
// records the redemption (taking one use) and publishes an event.
// Rejections come back as *RejectedError.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*Redemption, error) {
	ctx, span := s.tracer.Start(ctx, "redemption.Redeem")
	defer span.End()

	q, err := s.Quote(ctx, QuoteRequest{Code: req.Code, Amount: req.Amount})
	if err != nil {
		return nil, err
	}

	var applied coupon.Applied
	switch r := q.Result.(type) {
	case coupon.Rejected:
		return nil, &RejectedError{Code: q.Coupon.Code, Rejected: r}
	case coupon.Applied:
		applied = r
	}

	r := &Redemption{
		ID:             uuid.New().String(),
		CouponID:       q.Coupon.ID,
		Code:           q.Coupon.Code,
		PurchaseAmount: decimal.NewFromFloat(req.Amount),
		Discount:       applied.Discount,
		FinalPrice:     applied.FinalPrice,
		Reference:      req.Reference,
		RedeemedAt:     q.At.UTC(),
	}
	if err := s.redemptions.Record(ctx, r); err != nil {
		if errors.Is(err, coupon.ErrUsageLimitReached) {
			// Lost a race against another redemption for the last use.
			return nil, &RejectedError{
				Code:     q.Coupon.Code,
				Rejected: coupon.Rejected{Kind: coupon.KindExhausted, Message: coupon.ErrExhausted.Error()},
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "record redemption failed")
		return nil, errors.Wrap(err, "record redemption")
	}
	s.redeemed.Add(ctx, 1)

	lg := zctx.From(ctx)
	lg.Info("Coupon redeemed",
		zap.String("code", r.Code),
		zap.String("redemption_id", r.ID),
		zap.Stringer("discount", r.Discount),
		zap.Stringer("final_price", r.FinalPrice),
	)

	if s.publisher == nil {
		lg.Debug("No publisher configured, skipping redeemed event")
		return r, nil
	}
	if err := s.publisher.PublishRedeemed(ctx, r); err != nil {
		lg.Error("Publish redeemed event", zap.String("redemption_id", r.ID), zap.Error(err))
	}

	return r, nil
}
