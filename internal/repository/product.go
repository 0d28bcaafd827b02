package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/digikart/digikart/internal/domain/product"
)

const (
	getProductsSQL = `SELECT p.id, p.name, p.category, o.id, o.name, o.price, o.file_path
		FROM products p
		JOIN product_options o ON o.product_id = p.id
		WHERE p.active = TRUE AND p.id = ANY($1)
		ORDER BY p.id, o.sort_order, o.id`

	upsertProductSQL = `INSERT INTO products (id, name, category, active) VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, active = TRUE`

	upsertOptionSQL = `INSERT INTO product_options (id, product_id, name, price, file_path, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			file_path = EXCLUDED.file_path, sort_order = EXCLUDED.sort_order`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product with its options.
// Returns product.ErrNotFound when no active product matches.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	products, err := r.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, product.ErrNotFound
	}
	return &products[0], nil
}

// GetByIDs batch-fetches products with their options in a single query.
// Missing ids are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}
	defer rows.Close()

	var (
		products []product.Product
		current  *product.Product
	)
	for rows.Next() {
		var (
			pid, pname, category string
			oid, oname, filePath string
			price                decimal.Decimal
		)
		if err := rows.Scan(&pid, &pname, &category, &oid, &oname, &price, &filePath); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}

		if current == nil || current.ID != pid {
			products = append(products, product.Product{ID: pid, Name: pname, Category: category})
			current = &products[len(products)-1]
		}
		current.Options = append(current.Options, product.Option{
			ID: oid, Name: oname, Price: price, FilePath: filePath,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}
	return products, nil
}

// UpsertProduct creates or updates a product row. Used by the seed tool.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p *product.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Category); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	for i, opt := range p.Options {
		if _, err := r.pool.Exec(ctx, upsertOptionSQL, opt.ID, p.ID, opt.Name, opt.Price, opt.FilePath, i); err != nil {
			return fmt.Errorf("upserting option %q: %w", opt.ID, err)
		}
	}
	return nil
}
