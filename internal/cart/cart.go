// Package cart gère le panier conservé dans la session du navigateur.
//
// Le panier associe un identifiant produit (clé texte) à une quantité
// strictement positive. Il n'est jamais validé côté serveur avant la
// commande : la matérialisation relit chaque ligne dans sa transaction.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"cedra_storefront/internal/models"
)

// MaxQuantity borne une ligne du panier
const MaxQuantity = 999

var ErrInvalidQuantity = errors.New("quantité invalide: entre 1 et 999")

// Line est une ligne brute du panier, avant résolution contre le catalogue
type Line struct {
	ProductID int64
	Quantity  int
}

type Cart struct {
	items map[string]int
}

func New() *Cart {
	return &Cart{items: map[string]int{}}
}

// FromMap reconstruit un panier depuis la valeur de session.
// Les clés non numériques et les quantités ≤ 0 sont ignorées,
// les quantités au-delà de MaxQuantity sont ramenées à la borne.
func FromMap(m map[string]int) *Cart {
	c := New()
	for key, qty := range m {
		if qty <= 0 {
			continue
		}
		qty = min(qty, MaxQuantity)
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		c.items[strconv.FormatInt(id, 10)] = qty
	}
	return c
}

// Add cumule la quantité pour ce produit. Le cumul ne dépasse jamais
// MaxQuantity : la ligne reste inchangée si la borne serait franchie.
func (c *Cart) Add(productID int64, qty int) error {
	if qty < 1 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	k := key(productID)
	if c.items[k] > MaxQuantity-qty {
		return ErrInvalidQuantity
	}
	c.items[k] += qty
	return nil
}

// Remove supprime la ligne; ne fait rien si elle est absente
func (c *Cart) Remove(productID int64) {
	delete(c.items, key(productID))
}

func (c *Cart) Clear() {
	c.items = map[string]int{}
}

func (c *Cart) Quantity(productID int64) int {
	return c.items[key(productID)]
}

func (c *Cart) Len() int { return len(c.items) }

func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Lines retourne les lignes triées par identifiant produit croissant
func (c *Cart) Lines() []Line {
	lines := make([]Line, 0, len(c.items))
	for k, qty := range c.items {
		id, _ := strconv.ParseInt(k, 10, 64)
		lines = append(lines, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

// Map retourne une copie sérialisable dans la session
func (c *Cart) Map() map[string]int {
	out := make(map[string]int, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out
}

// Catalog résout plusieurs produits d'un coup; les absents sont omis de la map
type Catalog interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

type View struct {
	Lines    []models.CartLine `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	Count    int               `json:"count"`
}

// View résout le panier au prix courant. Les produits disparus sont
// simplement absents de la vue.
func (c *Cart) View(ctx context.Context, catalog Catalog) (View, error) {
	view := View{Lines: []models.CartLine{}, Subtotal: decimal.Zero}
	if c.IsEmpty() {
		return view, nil
	}

	lines := c.Lines()
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	products, err := catalog.GetMany(ctx, ids)
	if err != nil {
		return view, fmt.Errorf("résolution du panier: %w", err)
	}

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Lines = append(view.Lines, models.CartLine{Product: p, Quantity: l.Quantity, LineTotal: lineTotal})
		view.Subtotal = view.Subtotal.Add(lineTotal)
		view.Count += l.Quantity
	}
	return view, nil
}

func key(productID int64) string {
	return strconv.FormatInt(productID, 10)
}
