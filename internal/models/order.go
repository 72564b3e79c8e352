package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatusProcessing est le statut posé à la création d'une commande
const OrderStatusProcessing = "Processing"

type Order struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItem     `json:"items"`
}

// OrderItem capture le prix et la quantité au moment de la commande.
// ProductID devient nil si le produit est supprimé ensuite.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID *int64          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemsTotal recalcule la somme des lignes
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}
