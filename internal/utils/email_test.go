package utils

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedra_storefront/internal/models"
)

func sampleOrder() models.Order {
	pid := int64(1)
	return models.Order{
		ID:        42,
		UserID:    5,
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Status:    models.OrderStatusProcessing,
		Total:     decimal.RequireFromString("29.97"),
		Items: []models.OrderItem{
			{ID: 1, OrderID: 42, ProductID: &pid, Price: decimal.RequireFromString("9.99"), Quantity: 3},
		},
	}
}

func TestRenderOrderConfirmation(t *testing.T) {
	body, err := RenderOrderConfirmation("Alice", sampleOrder(), map[int64]string{1: "<b>Chemise</b>"})
	require.NoError(t, err)

	assert.Contains(t, body, "commande n°42")
	assert.Contains(t, body, "29.97 €")
	assert.Contains(t, body, "14/03/2026")
	assert.Contains(t, body, "&lt;b&gt;Chemise&lt;/b&gt;")
}

func TestRenderOrderConfirmationUnknownTitle(t *testing.T) {
	order := sampleOrder()
	order.Items = append(order.Items, models.OrderItem{Price: decimal.RequireFromString("1"), Quantity: 1})

	body, err := RenderOrderConfirmation("Alice", order, nil)
	require.NoError(t, err)
	assert.Contains(t, body, "Produit #1")
	assert.Contains(t, body, "Produit retiré du catalogue")
}

func TestBuildOrderConfirmation(t *testing.T) {
	m := NewMailer(MailerConfig{Host: "smtp.test", Port: 587, From: "noreply@cedra.local"})

	msg, err := m.BuildOrderConfirmation("alice@example.com", "Alice", sampleOrder(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "alice@example.com")
	assert.Contains(t, raw, "commande_42.png")
	assert.True(t, strings.Contains(raw, "text/html"))
}

func TestDisabledMailerIsNoop(t *testing.T) {
	m := NewMailer(MailerConfig{})
	assert.False(t, m.Enabled())
	assert.NoError(t, m.SendOrderConfirmation(context.Background(), "a@b.c", "A", sampleOrder(), nil))
	assert.NoError(t, m.SendWelcome(context.Background(), "a@b.c", "A"))
}

func TestOrderReceiptQR(t *testing.T) {
	png, err := OrderReceiptQR(sampleOrder(), 128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	payload := ReceiptPayload(sampleOrder())
	assert.Contains(t, payload, "ID:42")
	assert.Contains(t, payload, "TOTAL:EUR29.97")
}
