package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"cedra_storefront/internal/models"
)

const productColumns = `id, title, price, description, category, image, created_at, updated_at`

// ProductFilter regroupe les critères de recherche, tous optionnels et combinables
type ProductFilter struct {
	Query    string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Search filtre par titre (insensible à la casse), catégorie exacte et bornes de prix
func (r *ProductRepository) Search(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var (
		conds []string
		args  []any
	)

	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conds = append(conds, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recherche produits: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lecture produits: %w", err)
	}
	return products, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetMany charge plusieurs produits en une requête; les ids absents sont simplement ignorés
func (r *ProductRepository) GetMany(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	result := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("chargement produits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lecture produits: %w", err)
	}
	return result, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	err := r.db.QueryRowContext(ctx, `INSERT INTO products (title, price, description, category, image)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		p.Title, p.Price, p.Description, p.Category, nullString(p.Image),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("création produit: %w", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	err := r.db.QueryRowContext(ctx, `UPDATE products
		SET title = $1, price = $2, description = $3, category = $4, image = $5, updated_at = NOW()
		WHERE id = $6 RETURNING updated_at`,
		p.Title, p.Price, p.Description, p.Category, nullString(p.Image), p.ID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mise à jour produit %d: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("suppression produit %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("suppression produit %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "SELECT COUNT(*) FROM products")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p     models.Product
		image sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.Category, &image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan produit: %w", err)
	}
	p.Image = image.String
	return &p, nil
}

func count(ctx context.Context, db *sql.DB, query string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("comptage: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike neutralise les jokers pour que la recherche reste un "contient" littéral
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
