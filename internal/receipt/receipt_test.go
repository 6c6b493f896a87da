package receipt_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"io"
	"testing"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/receipt"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOrders struct{ mock.Mock }

func (m *mockOrders) RetrieveUserOrder(ctx context.Context, orderNumber, userID string) (*models.Order, error) {
	args := m.Called(ctx, orderNumber, userID)
	if o := args.Get(0); o != nil {
		return o.(*models.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestBuildReceipt(t *testing.T) {
	ctx := context.Background()
	orders := new(mockOrders)
	users := new(mockUsers)

	order := &models.Order{
		OrderNumber:  "ORD-2026-0A1B2C3D",
		UserID:       "user-1",
		Status:       models.OrderPaid,
		Subtotal:     decimal.NewFromInt(50),
		VAT:          decimal.NewFromInt(10),
		ShippingCost: decimal.NewFromInt(120),
		FinalTotal:   decimal.NewFromInt(180),
		ShippingAddress: &models.Address{
			StreetAddress: "12 Rue Rainandriamampandry",
			City:          "Antananarivo",
			Country:       "Madagascar",
			AddressType:   models.AddressShipping,
		},
		Items: []models.OrderItem{
			{ProductName: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(25), TotalPrice: decimal.NewFromInt(50)},
		},
		Payment: &models.Payment{Status: models.StatusSuccess, Amount: decimal.NewFromInt(180)},
	}
	orders.On("RetrieveUserOrder", ctx, order.OrderNumber, "user-1").Return(order, nil)
	users.On("GetUserByID", ctx, "user-1").Return(&models.User{Username: "rija", FirstName: "Rija", LastName: "Rakoto", Email: "rija@example.com"}, nil)

	gen := receipt.NewGenerator(orders, users, logger.NewWithWriter(io.Discard))
	r, err := gen.Build(ctx, order.OrderNumber, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Rija Rakoto", r.FullName)
	assert.Equal(t, "Antananarivo", r.ShippingAddress.City)
	assert.Len(t, r.Items, 1)
	assert.Equal(t, models.StatusSuccess, r.Payment.Status)
	assert.True(t, r.FinalTotal.Equal(decimal.NewFromInt(180)))

	raw, err := base64.StdEncoding.DecodeString(r.QRCode)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	orders.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestBuildReceiptForeignOrder(t *testing.T) {
	ctx := context.Background()
	orders := new(mockOrders)
	users := new(mockUsers)
	orders.On("RetrieveUserOrder", ctx, "ORD-2026-AAAAAAAA", "intruder").Return(nil, orderdb.ErrPermissionDenied)

	gen := receipt.NewGenerator(orders, users, logger.NewWithWriter(io.Discard))
	_, err := gen.Build(ctx, "ORD-2026-AAAAAAAA", "intruder")

	assert.ErrorIs(t, err, orderdb.ErrPermissionDenied)
	users.AssertNotCalled(t, "GetUserByID", mock.Anything, mock.Anything)
}

func TestEncodeQRDefaultSize(t *testing.T) {
	raw, err := receipt.EncodeQR("ORD-2026-0A1B2C3D", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}
