package users_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/users"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Users  *users.Service
	Logger *logger.Logger
}

func NewHandler(svc *users.Service, log *logger.Logger) *Handler {
	return &Handler{Users: svc, Logger: log}
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type PasswordResetRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

type PasswordResetConfirm struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type EmailChangeRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

const resetRequestedMessage = "If the account exists, a password reset link has been sent"

// RegisterRoutes mounts account routes. Profile and addresses sit behind requireAuth.
func (h *Handler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/api/accounts", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Get("/activate/{token}", h.Activate)
		r.Post("/login", h.Login)
		r.Post("/password-reset", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", h.Logout)
			r.Put("/email", h.ChangeEmail)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Get("/addresses", h.ListAddresses)
			r.Post("/addresses", h.AddAddress)
		})
	})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req users.SignupRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid signup request", err)
		return
	}
	user, err := h.Users.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, "Signup failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Account created, check your email to activate it", user))
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Activate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, "Activation failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Account activated", user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid login request", err)
		return
	}
	result, err := h.Users.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeError(w, "Login failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// Logout revokes the bearer token of the request
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Missing token", err)
		return
	}
	if err := h.Users.Logout(r.Context(), token); err != nil {
		h.writeError(w, "Logout failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// RequestPasswordReset answers the same way whether or not the account exists
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid password reset request", err)
		return
	}
	err := h.Users.RequestPasswordReset(r.Context(), req.Identifier)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		h.Logger.Error("USERS", fmt.Sprintf("Password reset request failed: %v", err))
	}
	utils.WriteJSON(w, http.StatusAccepted, map[string]string{"message": resetRequestedMessage})
}

func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirm
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid password reset", err)
		return
	}
	if err := h.Users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, "Password reset failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func (h *Handler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailChangeRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid email change", err)
		return
	}
	user, err := h.Users.ChangeEmail(r.Context(), auth.UserID(r.Context()), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "Email change failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Profile(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "Profile unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req users.ProfileUpdate
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid profile update", err)
		return
	}
	user, err := h.Users.UpdateProfile(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.writeError(w, "Profile update failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.Users.ListAddresses(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "Failed to list addresses", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, addresses)
}

func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req users.AddressRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid address", err)
		return
	}
	address, err := h.Users.AddAddress(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.writeError(w, "Failed to add address", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, address)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("USERS", fmt.Sprintf("%s: %v", message, err))
		utils.WriteError(w, status, message, nil)
		return
	}
	utils.WriteError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, users.ErrInvalidAddressType),
		errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongPurpose),
		errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, users.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrUsernameTaken), errors.Is(err, users.ErrEmailTaken),
		errors.Is(err, users.ErrAlreadyActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
