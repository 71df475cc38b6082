package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// ProductRepository хранит каталог товаров в PostgreSQL.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductStore.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

// Upsert добавляет товар или обновляет его данные и остаток. Используется при загрузке каталога.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, image, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    image = EXCLUDED.image,
		    quantity = EXCLUDED.quantity,
		    updated_at = EXCLUDED.updated_at
	`, product.ID, product.Name, product.Price, product.Image, product.Quantity, now)
	if err != nil {
		return storageError("upsert product", err)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, image, quantity
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Price, &product.Image, &product.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NewProductNotFound(id)
		}
		return domain.Product{}, storageError("select product", err)
	}
	return product, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, image, quantity
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, storageError("select products", err)
	}
	defer rows.Close()

	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Price, &product.Image, &product.Quantity); err != nil {
			return nil, storageError("scan product", err)
		}
		result[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate products", err)
	}
	return result, nil
}

// IncrementQuantity меняет остаток одним UPDATE; условие в WHERE не даёт остатку уйти в минус.
func (r *ProductRepository) IncrementQuantity(ctx context.Context, id string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND quantity + $2 >= 0
	`, id, delta)
	if err != nil {
		return storageError("increment product quantity", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storageError("rows affected", err)
	}
	if affected > 0 {
		return nil
	}

	product, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		ProductID:   id,
		ProductName: product.Name,
		Requested:   -delta,
		Available:   product.Quantity,
	}
}

// Count возвращает число товаров в каталоге.
func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

var _ domain.ProductStore = (*ProductRepository)(nil)
