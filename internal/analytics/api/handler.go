package analytics_api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

type SalesReporter interface {
	Sales(ctx context.Context, r analytics.Range, top int) (*analytics.SalesSummary, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service SalesReporter
	Logger  *logger.Logger
}

func NewHandler(service SalesReporter, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes mounts the analytics routes; callers wrap r with auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/analytics/sales", h.GetSales)
}

// GetSales handles GET /api/analytics/sales?from=YYYY-MM-DD&to=YYYY-MM-DD&top=N.
// The to date is inclusive.
func (h *Handler) GetSales(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		h.Logger.Error("ANALYTICS", "User ID not found in context")
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized access", nil)
		return
	}

	rng, top, err := parseSalesQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid analytics query", err)
		return
	}

	summary, err := h.Service.Sales(r.Context(), rng, top)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error getting sales analytics: "+err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get analytics", nil)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Sales analytics", summary))
}

func parseSalesQuery(r *http.Request) (analytics.Range, int, error) {
	var rng analytics.Range
	q := r.URL.Query()

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return rng, 0, fmt.Errorf("from must be YYYY-MM-DD")
		}
		rng.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return rng, 0, fmt.Errorf("to must be YYYY-MM-DD")
		}
		rng.To = t.AddDate(0, 0, 1)
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.From.Before(rng.To) {
		return rng, 0, fmt.Errorf("from must not be after to")
	}

	top := 0
	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return rng, 0, fmt.Errorf("top must be between 1 and 100")
		}
		top = n
	}
	return rng, top, nil
}
