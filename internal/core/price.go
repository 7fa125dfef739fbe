package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"delivery-reconciler/internal/cache"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PriceKey identifies an agreed price.
type PriceKey struct {
	StationID  int64 `json:"station_id"`
	ProductID  int64 `json:"product_id"`
	CustomerID int64 `json:"customer_id"`
}

func (k PriceKey) String() string {
	return fmt.Sprintf("station %d product %d customer %d", k.StationID, k.ProductID, k.CustomerID)
}

// Price is the outcome of a price lookup. Configured=false is a valid answer, not an error.
type Price struct {
	Amount     decimal.Decimal `json:"amount"`
	Configured bool            `json:"configured"`
}

// NotConfigured is the Price returned when no agreed price exists for a key.
func NotConfigured() Price { return Price{Amount: decimal.Zero} }

// PriceResolver resolves the agreed unit price for a (station, product, customer) triple.
// It has no side effects on the ledgers.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, key PriceKey) (Price, error)
}

type storePriceResolver struct {
	store Store
	now   func() time.Time
}

// NewPriceResolver constructs a PriceResolver backed by the store's price table.
// The price effective on the current date wins.
func NewPriceResolver(store Store) PriceResolver {
	return &storePriceResolver{store: store, now: time.Now}
}

func (r *storePriceResolver) ResolvePrice(ctx context.Context, key PriceKey) (Price, error) {
	amount, ok, err := r.store.LookupPrice(ctx, key, r.now())
	if err != nil {
		return Price{}, fmt.Errorf("failed to resolve price for %s: %w", key, err)
	}
	if !ok {
		return NotConfigured(), nil
	}
	return Price{Amount: amount, Configured: true}, nil
}

// PriceInvalidator is implemented by resolvers that hold cached answers.
type PriceInvalidator interface {
	InvalidatePrice(ctx context.Context, key PriceKey) error
}

// CachedPriceResolver memoises another resolver's configured prices for ttl. "Not configured" is
// never cached, so a newly added price is visible on the next call. Cache failures fall through
// to the wrapped resolver. Answers may be stale for up to ttl; reconciliation must not use it.
type CachedPriceResolver struct {
	next  PriceResolver
	cache cache.Cache
	ttl   time.Duration
	log   logrus.FieldLogger
}

func NewCachedPriceResolver(next PriceResolver, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) *CachedPriceResolver {
	return &CachedPriceResolver{next: next, cache: c, ttl: ttl, log: log}
}

func priceCacheKey(key PriceKey) string {
	return fmt.Sprintf("price:%d:%d:%d", key.StationID, key.ProductID, key.CustomerID)
}

func (r *CachedPriceResolver) ResolvePrice(ctx context.Context, key PriceKey) (Price, error) {
	ck := priceCacheKey(key)
	raw, err := r.cache.Get(ctx, ck)
	if err == nil {
		var p Price
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		r.log.WithField("key", ck).Warn("discarding undecodable cached price")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.log.WithError(err).WithField("key", ck).Warn("price cache read failed")
	}

	p, err := r.next.ResolvePrice(ctx, key)
	if err != nil {
		return Price{}, err
	}
	if !p.Configured {
		return p, nil
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := r.cache.Set(ctx, ck, raw, r.ttl); err != nil {
			r.log.WithError(err).WithField("key", ck).Warn("price cache write failed")
		}
	}
	return p, nil
}

// InvalidatePrice drops the cached answer for key, e.g. after the price table was edited.
func (r *CachedPriceResolver) InvalidatePrice(ctx context.Context, key PriceKey) error {
	if err := r.cache.Delete(ctx, priceCacheKey(key)); err != nil {
		return fmt.Errorf("failed to invalidate cached price for %s: %w", key, err)
	}
	return nil
}
