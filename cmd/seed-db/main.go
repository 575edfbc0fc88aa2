package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyName   string
		apiKeyScopes string
		apiKeyPepper string
		withCoupons  bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&apiKeyName, "api-key-name", "Default key", "display name of the seeded key")
	flag.StringVar(&apiKeyScopes, "api-key-scopes", auth.ScopeAdmin, "comma-separated scopes granted to the key")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_API_KEY_PEPPER env)")
	flag.BoolVar(&withCoupons, "coupons", true, "also seed the sample coupons")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or COUPON_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPON_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	key := &auth.APIKeyInfo{
		ID:      uuid.NewString(),
		KeyHash: auth.HashKey([]byte(apiKeyPepper), apiKey),
		Name:    apiKeyName,
		Scopes:  parseScopes(apiKeyScopes),
	}
	if err := run(ctx, databaseURL, key, withCoupons); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func parseScopes(s string) []string {
	scopes := []string{}
	for scope := range strings.SplitSeq(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

func run(ctx context.Context, databaseURL string, key *auth.APIKeyInfo, withCoupons bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := postgres.NewAPIKeyRepository(pool).Create(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("name", key.Name), slog.Any("scopes", key.Scopes))

	if withCoupons {
		if err := seedCoupons(ctx, coupon.NewAdmin(postgres.NewCouponRepository(pool))); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, admin *coupon.Admin) error {
	slog.Info("seeding sample coupons")

	minPurchase := 50.0
	maxUses := 100
	coupons := []coupon.CreateRequest{
		{
			Code:          "SAVE20",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: 20,
			Description:   "20% off any purchase",
		},
		{
			Code:              "FLAT10",
			DiscountType:      coupon.DiscountFixed,
			DiscountValue:     10,
			MinPurchaseAmount: &minPurchase,
			Description:       "10 off orders of 50 or more",
		},
		{
			Code:          "LAUNCH100",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: 15,
			MaxUsageCount: &maxUses,
			Description:   "Launch offer: 15% off, first 100 redemptions",
		},
	}

	for _, req := range coupons {
		_, err := admin.Create(ctx, req)
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			slog.Info("coupon already present", slog.String("code", req.Code))
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", req.Code)
		default:
			slog.Info("created coupon", slog.String("code", req.Code), slog.String("description", req.Description))
		}
	}
	return nil
}
