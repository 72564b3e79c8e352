package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"cedra_storefront/internal/models"
)

const orderColumns = `id, user_id, created_at, status, total`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListByUser retourne les commandes d'un utilisateur, les plus récentes d'abord
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
}

// ListAll retourne toutes les commandes, les plus récentes d'abord
func (r *OrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id).
		Scan(&o.ID, &o.UserID, &o.CreatedAt, &o.Status, &o.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lecture commande %d: %w", id, err)
	}

	orders := []models.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "SELECT COUNT(*) FROM orders")
}

// TotalSales additionne les totaux figés de toutes les commandes
func (r *OrderRepository) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(total), 0) FROM orders").Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("total des ventes: %w", err)
	}
	return total, nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("liste commandes: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.CreatedAt, &o.Status, &o.Total); err != nil {
			return nil, fmt.Errorf("scan commande: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lecture commandes: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems charge les lignes de toutes les commandes en une seule requête
func (r *OrderRepository) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, product_id, price, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("lignes de commande: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      models.OrderItem
			productID sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &productID, &item.Price, &item.Quantity); err != nil {
			return fmt.Errorf("scan ligne de commande: %w", err)
		}
		if productID.Valid {
			pid := productID.Int64
			item.ProductID = &pid
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

// CheckoutTx est la portée transactionnelle utilisée pour matérialiser une commande
type CheckoutTx interface {
	CreateOrder(ctx context.Context, userID int64, status string, at time.Time) (int64, time.Time, error)
	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	AddItem(ctx context.Context, item *models.OrderItem) error
	SetTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	Commit() error
	Rollback() error
}

// BeginCheckout ouvre une transaction; tout ce qui y est écrit est validé ou annulé d'un bloc
func (r *OrderRepository) BeginCheckout(ctx context.Context) (CheckoutTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ouverture transaction: %w", err)
	}
	return &checkoutTx{tx: tx}, nil
}

type checkoutTx struct {
	tx *sql.Tx
}

func (t *checkoutTx) CreateOrder(ctx context.Context, userID int64, status string, at time.Time) (int64, time.Time, error) {
	var (
		id        int64
		createdAt time.Time
	)
	err := t.tx.QueryRowContext(ctx,
		"INSERT INTO orders (user_id, created_at, status, total) VALUES ($1, $2, $3, 0) RETURNING id, created_at",
		userID, at, status,
	).Scan(&id, &createdAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("création commande: %w", err)
	}
	return id, createdAt, nil
}

// LockProduct relit le produit dans la transaction et le verrouille en partage
// pour qu'une suppression concurrente attende la fin de la commande.
func (t *checkoutTx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR SHARE", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (t *checkoutTx) AddItem(ctx context.Context, item *models.OrderItem) error {
	err := t.tx.QueryRowContext(ctx,
		"INSERT INTO order_items (order_id, product_id, price, quantity) VALUES ($1, $2, $3, $4) RETURNING id",
		item.OrderID, item.ProductID, item.Price, item.Quantity,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("création ligne de commande: %w", err)
	}
	return nil
}

func (t *checkoutTx) SetTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	if _, err := t.tx.ExecContext(ctx, "UPDATE orders SET total = $1 WHERE id = $2", total, orderID); err != nil {
		return fmt.Errorf("mise à jour total commande %d: %w", orderID, err)
	}
	return nil
}

func (t *checkoutTx) Commit() error {
	return t.tx.Commit()
}

func (t *checkoutTx) Rollback() error {
	return t.tx.Rollback()
}
