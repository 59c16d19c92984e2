// Package main seeds a fresh database with a demo product catalogue and
// opening stock. Running it twice skips products that already exist.
package main

import (
	"context"
	"fmt"
	"os"

	"orderflow/internal/app"
	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/catalogs/product"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/infrastructure/config"
	"orderflow/pkg/logger"
)

type seedProduct struct {
	code      string
	name      string
	unit      string
	price     string
	threshold int64
	stock     map[entity.Location]int64
}

var demoProducts = []seedProduct{
	{"FRM-100", "Steel frame 100", "pcs", "145.00", 5, map[entity.Location]int64{entity.LocationNG: 20, entity.LocationPH: 8}},
	{"FRM-200", "Steel frame 200", "pcs", "189.50", 5, map[entity.Location]int64{entity.LocationNG: 6}},
	{"PNL-AL", "Aluminium panel", "pcs", "42.75", 20, map[entity.Location]int64{entity.LocationPH: 60}},
	{"BLT-M8", "Bolt M8", "pcs", "0.35", 500, map[entity.Location]int64{entity.LocationNG: 2000, entity.LocationPH: 1500}},
	{"CBL-3", "Cable 3 core", "m", "2.10", 100, map[entity.Location]int64{entity.LocationNG: 350}},
	{"GSK-R", "Rubber gasket", "pcs", "1.20", 0, nil},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx := appctx.WithActor(context.Background(), &appctx.Actor{ID: appctx.SystemActorID, Name: "seed"})

	services, cleanup, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}
	defer cleanup()

	created := 0
	for _, sp := range demoProducts {
		ok, err := seed(ctx, services, sp)
		if err != nil {
			log.Fatalw("failed to seed product", "code", sp.code, "error", err)
		}
		if ok {
			created++
			log.Infow("seeded product", "code", sp.code)
		}
	}

	log.Infow("seeding completed", "created", created, "skipped", len(demoProducts)-created)
}

// seed creates one product with its opening stock. It reports false when the
// product code is already taken.
func seed(ctx context.Context, s *app.Services, sp seedProduct) (bool, error) {
	if _, err := s.Products.GetByCode(ctx, sp.code); err == nil {
		return false, nil
	} else if !apperror.IsNotFound(err) {
		return false, err
	}

	p := product.NewProduct(sp.code, sp.name, sp.unit)
	p.BasePrice = types.MustMoney(sp.price)
	p.LowStockThreshold = types.NewQuantity(sp.threshold)
	if err := s.Products.Create(ctx, p); err != nil {
		return false, err
	}

	for loc, qty := range sp.stock {
		_, err := s.Ledger.Adjust(ctx, ledger.AdjustRequest{
			ProductID: p.ID,
			Location:  loc,
			Delta:     types.NewQuantity(qty),
			Reason:    "opening stock",
		})
		if err != nil {
			return false, fmt.Errorf("opening stock at %s: %w", loc, err)
		}
	}
	return true, nil
}
