// Command seed-db loads the design catalog and a few starter coupons into the
// database, running migrations first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/digikart/digikart/internal/domain/coupon"
	"github.com/digikart/digikart/internal/domain/product"
	"github.com/digikart/digikart/internal/repository"
)

type productJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Options  []struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		FilePath string          `json:"file_path"`
	} `json:"options"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, pj := range products {
		p := &product.Product{
			ID:       pj.ID,
			Name:     pj.Name,
			Category: pj.Category,
		}
		for _, o := range pj.Options {
			p.Options = append(p.Options, product.Option{
				ID:       o.ID,
				Name:     o.Name,
				Price:    o.Price,
				FilePath: o.FilePath,
			})
		}
		if err := repo.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding starter coupons")

	yearEnd := time.Date(time.Now().Year(), time.December, 31, 23, 59, 59, 0, time.UTC)

	coupons := []*coupon.Coupon{
		{
			Code:      "WELCOME150",
			Type:      coupon.TypeFixed,
			Discount:  decimal.NewFromInt(150),
			MinAmount: decimal.NewFromInt(500),
			Active:    true,
		},
		{
			Code:        "SAVE20",
			Type:        coupon.TypePercentage,
			Discount:    decimal.NewFromInt(20),
			MaxDiscount: decimal.NewFromInt(300),
			DateEnd:     &yearEnd,
			Active:      true,
			MaxUses:     1000,
		},
		{
			Code:      "AUTUMN5",
			Type:      coupon.TypePercentage,
			Discount:  decimal.NewFromInt(5),
			Active:    true,
			AutoApply: true,
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code))
	}
	return nil
}
