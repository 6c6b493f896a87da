package analytics_api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReporter struct{ mock.Mock }

func (m *mockReporter) Sales(ctx context.Context, r analytics.Range, top int) (*analytics.SalesSummary, error) {
	args := m.Called(ctx, r, top)
	if s := args.Get(0); s != nil {
		return s.(*analytics.SalesSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func newRouter(h *Handler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.RegisterRoutes(r)
	return r
}

func TestGetSales(t *testing.T) {
	reporter := new(mockReporter)
	h := NewHandler(reporter, logger.NewWithWriter(io.Discard))

	want := analytics.Range{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	reporter.On("Sales", mock.Anything, want, 3).
		Return(&analytics.SalesSummary{TotalOrders: 4, PaidOrders: 3, Revenue: decimal.NewFromInt(210)}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/sales?from=2026-03-01&to=2026-03-31&top=3", nil)
	newRouter(h, "admin-1").ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool                   `json:"success"`
		Data    analytics.SalesSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Data.PaidOrders)
	assert.True(t, body.Data.Revenue.Equal(decimal.NewFromInt(210)))
	reporter.AssertExpectations(t)
}

func TestGetSalesRejectsBadQuery(t *testing.T) {
	reporter := new(mockReporter)
	h := NewHandler(reporter, logger.NewWithWriter(io.Discard))

	for _, query := range []string{"from=03-01-2026", "top=0", "from=2026-03-10&to=2026-03-01"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/analytics/sales?"+query, nil)
		newRouter(h, "admin-1").ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
	reporter.AssertNotCalled(t, "Sales", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetSalesRequiresUser(t *testing.T) {
	h := NewHandler(new(mockReporter), logger.NewWithWriter(io.Discard))

	rec := httptest.NewRecorder()
	newRouter(h, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/sales", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetSalesServiceError(t *testing.T) {
	reporter := new(mockReporter)
	h := NewHandler(reporter, logger.NewWithWriter(io.Discard))
	reporter.On("Sales", mock.Anything, analytics.Range{}, 0).Return(nil, errors.New("db down"))

	rec := httptest.NewRecorder()
	newRouter(h, "admin-1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/sales", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
