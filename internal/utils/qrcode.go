package utils

import (
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"cedra_storefront/internal/models"
)

// ReceiptPayload est le texte encodé dans le QR du reçu
func ReceiptPayload(order models.Order) string {
	return fmt.Sprintf("CEDRA-ORDER\nID:%d\nUSER:%d\nDATE:%s\nTOTAL:EUR%s\nITEMS:%d",
		order.ID, order.UserID, order.CreatedAt.UTC().Format(time.RFC3339), order.Total.StringFixed(2), len(order.Items))
}

// OrderReceiptQR génère le PNG du QR code du reçu
func OrderReceiptQR(order models.Order, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(ReceiptPayload(order), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("génération QR: %w", err)
	}
	return png, nil
}
