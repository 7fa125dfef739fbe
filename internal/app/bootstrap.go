package app

import (
	"context"
	"fmt"

	"delivery-reconciler/internal/cache"
	"delivery-reconciler/internal/config"
	"delivery-reconciler/internal/core"
	"delivery-reconciler/internal/db"

	"github.com/sirupsen/logrus"
)

// Bootstrap opens the configured store and price cache and assembles the service graph.
// The returned cleanup closes both.
func Bootstrap(ctx context.Context, cfg *config.Config, log *logrus.Logger) (ApplicationService, func(), error) {
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}

	direct := core.NewPriceResolver(store)
	var prices core.PriceResolver = direct
	var priceCache cache.Cache
	switch cfg.Cache.Type {
	case "memory":
		priceCache = cache.NewMemoryCache()
	case "redis":
		priceCache, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisKeyPrefix,
		})
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("price cache: %w", err)
		}
	}
	if priceCache != nil {
		prices = core.NewCachedPriceResolver(prices, priceCache, cfg.Cache.TTL, log.WithField("module", "price_cache"))
	}

	ledger := core.NewLedgerStore(store, core.StockPolicy(cfg.Engine.StockPolicy))
	// The cache only serves price previews; reconciliation always reads the price table.
	reconciler := core.NewReconciler(store, direct, ledger, log.WithField("module", "reconciler"))
	accounts := core.NewAccountService(store)

	svc := NewAppService(store, reconciler, accounts, prices, RetryPolicy{
		MaxAttempts:     cfg.Engine.MaxRetries,
		InitialInterval: cfg.Engine.RetryInterval,
	}, log.WithField("module", "app"))

	log.WithFields(logrus.Fields{
		"driver":       cfg.Database.Driver,
		"price_cache":  cfg.Cache.Type,
		"stock_policy": cfg.Engine.StockPolicy,
	}).Info("reconciliation engine ready")

	cleanup := func() {
		if priceCache != nil {
			if err := priceCache.Close(); err != nil {
				config.LogError(log, "app", "Bootstrap", "closing price cache", nil, err)
			}
		}
		if err := store.Close(); err != nil {
			config.LogError(log, "app", "Bootstrap", "closing store", nil, err)
		}
	}
	return svc, cleanup, nil
}
