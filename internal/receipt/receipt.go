package receipt

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

type OrderReader interface {
	RetrieveUserOrder(ctx context.Context, orderNumber, userID string) (*models.Order, error)
}

type UserReader interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Receipt is the processing receipt shown after checkout.
type Receipt struct {
	OrderNumber     string             `json:"order_number"`
	Status          models.OrderStatus `json:"status"`
	FullName        string             `json:"full_name"`
	Email           string             `json:"email"`
	ShippingAddress *models.Address    `json:"shipping_address,omitempty"`
	Items           []models.OrderItem `json:"items"`
	Payment         *models.Payment    `json:"payment,omitempty"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	VAT             decimal.Decimal    `json:"vat"`
	ShippingCost    decimal.Decimal    `json:"shipping_cost"`
	FinalTotal      decimal.Decimal    `json:"final_total"`
	CreatedAt       time.Time          `json:"created_at"`
	QRCode          string             `json:"qr_code"`
}

type Generator struct {
	Orders OrderReader
	Users  UserReader
	Logger *logger.Logger
	QRSize int
}

func NewGenerator(orders OrderReader, users UserReader, log *logger.Logger) *Generator {
	return &Generator{Orders: orders, Users: users, Logger: log, QRSize: defaultQRSize}
}

// Build assembles the receipt of an order owned by userID.
func (g *Generator) Build(ctx context.Context, orderNumber, userID string) (*Receipt, error) {
	order, err := g.Orders.RetrieveUserOrder(ctx, orderNumber, userID)
	if err != nil {
		return nil, err
	}
	user, err := g.Users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load customer of %s: %w", orderNumber, err)
	}

	png, err := EncodeQR(order.OrderNumber, g.QRSize)
	if err != nil {
		g.Logger.Error("RECEIPT", fmt.Sprintf("QR generation failed for %s: %v", orderNumber, err))
		return nil, err
	}

	return &Receipt{
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		FullName:        user.FullName(),
		Email:           user.Email,
		ShippingAddress: order.ShippingAddress,
		Items:           order.Items,
		Payment:         order.Payment,
		Subtotal:        order.Subtotal,
		VAT:             order.VAT,
		ShippingCost:    order.ShippingCost,
		FinalTotal:      order.FinalTotal,
		CreatedAt:       order.CreatedAt,
		QRCode:          base64.StdEncoding.EncodeToString(png),
	}, nil
}

// EncodeQR renders content as a PNG QR code.
func EncodeQR(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
