// Package checkout transforme un panier en commande durable.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/cart"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
)

var (
	ErrEmptyCart     = errors.New("le panier est vide")
	ErrNoValidItems  = errors.New("aucun produit du panier n'existe encore")
	ErrNoIdentity    = errors.New("utilisateur non authentifié")
	ErrOrderTooLarge = errors.New("montant de la commande trop élevé")
	// ErrPersistence enveloppe toute erreur de base survenue pendant la transaction
	ErrPersistence = errors.New("échec d'enregistrement de la commande")
)

// MaxOrderTotal est le plus grand montant que orders.total (NUMERIC(12,2)) accepte
var MaxOrderTotal = decimal.RequireFromString("9999999999.99")

// Store ouvre la transaction de commande
type Store interface {
	BeginCheckout(ctx context.Context) (repository.CheckoutTx, error)
}

type Result struct {
	Order *models.Order
	// Skipped liste les produits du panier disparus du catalogue
	Skipped []int64
}

type Materializer struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewMaterializer(store Store, log logrus.FieldLogger) *Materializer {
	return &Materializer{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Checkout crée la commande et ses lignes dans une seule transaction,
// en figeant le prix courant de chaque produit, puis vide le panier.
// En cas d'échec le panier n'est pas modifié, sauf pour ErrNoValidItems
// où les identifiants disparus en sont retirés.
func (m *Materializer) Checkout(ctx context.Context, c *cart.Cart, who models.Identity) (*Result, error) {
	if who.UserID == 0 {
		return nil, ErrNoIdentity
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	tx, err := m.store.BeginCheckout(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.log.WithError(rbErr).Warn("⚠️ Rollback de la commande échoué")
			}
		}
	}()

	orderID, createdAt, err := tx.CreateOrder(ctx, who.UserID, models.OrderStatusProcessing, m.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	order := &models.Order{
		ID:        orderID,
		UserID:    who.UserID,
		CreatedAt: createdAt,
		Status:    models.OrderStatusProcessing,
		Total:     decimal.Zero,
		Items:     []models.OrderItem{},
	}
	var skipped []int64

	// Revalidation : chaque ligne est relue et verrouillée dans la transaction
	for _, line := range c.Lines() {
		p, err := tx.LockProduct(ctx, line.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			skipped = append(skipped, line.ProductID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}

		productID := p.ID
		item := models.OrderItem{
			OrderID:   orderID,
			ProductID: &productID,
			Price:     p.Price,
			Quantity:  line.Quantity,
		}
		if err := tx.AddItem(ctx, &item); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		order.Items = append(order.Items, item)
		order.Total = order.Total.Add(item.LineTotal())
	}

	if len(order.Items) == 0 {
		for _, id := range skipped {
			c.Remove(id)
		}
		return nil, ErrNoValidItems
	}
	if order.Total.GreaterThan(MaxOrderTotal) {
		return nil, ErrOrderTooLarge
	}

	if err := tx.SetTotal(ctx, orderID, order.Total); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		committed = true // un Commit échoué a déjà libéré la transaction
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	committed = true

	c.Clear()

	entry := m.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"user_id":  who.UserID,
		"items":    len(order.Items),
		"total":    order.Total.StringFixed(2),
	})
	if len(skipped) > 0 {
		entry.WithField("skipped", skipped).Warn("⚠️ Commande créée sans les produits disparus du catalogue")
	} else {
		entry.Info("✅ Commande créée")
	}

	return &Result{Order: order, Skipped: skipped}, nil
}
