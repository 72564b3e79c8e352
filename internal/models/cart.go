package models

import "github.com/shopspring/decimal"

// CartLine est une ligne du panier résolue contre le catalogue
type CartLine struct {
	Product   Product         `json:"product"`
	Quantity  int             `json:"qty"`
	LineTotal decimal.Decimal `json:"line_total"`
}
