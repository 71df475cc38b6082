package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

const orderColumns = `id, user_id, sub_total, iva, total, total_products, payment, status, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderStore.
func NewOrderRepository(store *Store) domain.OrderStore {
	return &orderRepository{db: store.DB()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	kind, payment, err := encodePayment(order.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, storageError("begin tx", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, sub_total, iva, total, total_products,
			payment_method, payment, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.UserID, order.SubTotal, order.IVA, order.Total, order.TotalProducts,
		string(kind), payment, string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, fmt.Errorf("%w: order %s already exists", domain.ErrStorage, order.ID)
		}
		return domain.Order{}, storageError("insert order", err)
	}

	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, i, item.ProductID, item.Quantity, item.Price); err != nil {
			return domain.Order{}, storageError("insert order item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, storageError("commit create order", err)
	}

	order.Items = stripSnapshots(order.Items)
	return order, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return findOrder(ctx, r.db, id)
}

func (r *orderRepository) FindAll(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + orderColumns + ` FROM orders`)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query.WriteString(fmt.Sprintf(" WHERE user_id = $%d", len(args)))
	}
	query.WriteString(" ORDER BY created_at DESC, seq DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, storageError("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate order rows", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus блокирует строку заказа, чтобы чтение предыдущего статуса и запись были атомарны.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, checks ...domain.StatusCheck) (domain.Order, domain.OrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, "", storageError("begin tx", err)
	}
	defer rollback(tx)

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, "", domain.ErrOrderNotFound
		}
		return domain.Order{}, "", storageError("lock order", err)
	}
	for _, check := range checks {
		if err := check(domain.OrderStatus(previous)); err != nil {
			return domain.Order{}, domain.OrderStatus(previous), err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC()); err != nil {
		return domain.Order{}, "", storageError("update order status", err)
	}

	updated, err := findOrder(ctx, tx, id)
	if err != nil {
		return domain.Order{}, "", err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, "", storageError("commit update status", err)
	}
	return updated, domain.OrderStatus(previous), nil
}

func (r *orderRepository) DeleteByID(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return storageError("delete order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageError("rows affected", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func findOrder(ctx context.Context, q querier, id string) (domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}

	orders := []domain.Order{order}
	if err := loadItems(ctx, q, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	return loadItems(ctx, r.db, orders)
}

// loadItems загружает позиции всех заказов одним запросом.
func loadItems(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return storageError("load order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return storageError("scan order item", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return storageError("iterate order items", err)
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		payment []byte
		status  string
	)
	err := row.Scan(
		&order.ID, &order.UserID, &order.SubTotal, &order.IVA, &order.Total, &order.TotalProducts,
		&payment, &status, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, storageError("scan order", err)
	}

	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.PaymentMethod, err = decodePayment(payment)
	if err != nil {
		return domain.Order{}, storageError("decode payment of order "+order.ID, err)
	}
	return order, nil
}

func stripSnapshots(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	for i, item := range items {
		item.Product = nil
		out[i] = item
	}
	return out
}

var _ domain.OrderStore = (*orderRepository)(nil)
