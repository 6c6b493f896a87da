package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCountry = "Madagascar"

var (
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrAccountDisabled    = errors.New("Account disabled, please activate it first")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("A user with that username already exists.")
	ErrEmailTaken         = errors.New("A user with that email already exists.")
	ErrAlreadyActive      = errors.New("Account is already active")
	ErrInvalidAddressType = errors.New("address type must be billing, shipping or home")
)

type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	Exists(ctx context.Context, username, email string) (bool, bool, error)
	UpdateUser(ctx context.Context, user *models.User, columns ...string) error
	CreateAddress(ctx context.Context, address *models.Address) error
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
}

type SignupRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=150"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name" validate:"max=150"`
	LastName    string `json:"last_name" validate:"max=150"`
	PhoneNumber string `json:"phone_number" validate:"max=20"`
}

type ProfileUpdate struct {
	FirstName   *string `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name" validate:"omitempty,max=150"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
}

type AddressRequest struct {
	StreetAddress string             `json:"street_address" validate:"required"`
	City          string             `json:"city" validate:"required"`
	State         string             `json:"state" validate:"required"`
	Country       string             `json:"country"`
	ZipCode       string             `json:"zip_code" validate:"required"`
	AddressType   models.AddressType `json:"address_type" validate:"required,oneof=billing shipping home"`
}

type LoginResult struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Notifier hands one-time account tokens to whatever mails them out.
type Notifier interface {
	NotifyAccount(ctx context.Context, n models.AccountNotification) error
}

type Service struct {
	Store    Store
	Tokens   *auth.Issuer
	Revoker  TokenRevoker
	Notifier Notifier
	Logger   *logger.Logger
	HashCost int
}

func NewService(store Store, tokens *auth.Issuer, log *logger.Logger) *Service {
	return &Service{Store: store, Tokens: tokens, Logger: log, HashCost: bcrypt.DefaultCost}
}

// Signup registers an inactive account. The activation token only leaves
// through the notifier.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	usernameTaken, emailTaken, err := s.Store.Exists(ctx, req.Username, req.Email)
	if err != nil {
		return nil, err
	}
	if usernameTaken {
		return nil, ErrUsernameTaken
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.HashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           utils.GenerateUUID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhoneNumber:  req.PhoneNumber,
		IsActive:     false,
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.Tokens.IssueActivationToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("USERS", fmt.Sprintf("User %s signed up, awaiting activation", user.Username))
	s.notify(ctx, models.NotifyAccountActivation, user, token)
	return user, nil
}

// Activate enables the account named by an activation token
func (s *Service) Activate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.Tokens.Parse(token, auth.PurposeActivation)
	if err != nil {
		return nil, err
	}
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsActive {
		return nil, ErrAlreadyActive
	}

	user.IsActive = true
	if err := s.Store.UpdateUser(ctx, user, "is_active"); err != nil {
		return nil, err
	}
	s.Logger.Info("USERS", fmt.Sprintf("User %s activated", user.Username))
	return user, nil
}

// Login accepts a username or an email with the account password
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.Store.FindByIdentifier(ctx, identifier)
	if errors.Is(err, ErrUserNotFound) {
		s.Logger.LogSecurity("LOGIN_FAILED", "unknown identifier")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.Logger.LogSecurity("LOGIN_FAILED", "bad password for "+user.Username)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	token, expires, err := s.Tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, ExpiresAt: expires, User: user}, nil
}

// Logout revokes an access token. Without a revoker tokens simply run out.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.Tokens.ParseClaims(rawToken, auth.PurposeAccess)
	if err != nil {
		return err
	}
	if s.Revoker == nil {
		return nil
	}
	if err := s.Revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.Logger.LogSecurity("LOGOUT", "token revoked for "+claims.Subject)
	return nil
}

// RequestPasswordReset sends a reset token to the account matching identifier.
// The token only leaves through the notifier.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) error {
	user, err := s.Store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	token, err := s.Tokens.IssuePasswordResetToken(user.ID)
	if err != nil {
		return err
	}
	s.Logger.LogSecurity("PASSWORD_RESET_REQUESTED", user.Username)
	if s.Notifier == nil {
		s.Logger.Warn("USERS", "No notifier configured, password reset token for "+user.Username+" was not delivered")
		return nil
	}
	return s.Notifier.NotifyAccount(ctx, accountNotification(models.NotifyPasswordReset, user, token))
}

// ResetPassword sets a new password for the account named by a reset token.
// With a revoker the token works once.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.Tokens.ParseClaims(token, auth.PurposePasswordReset)
	if err != nil {
		return err
	}
	if s.Revoker != nil {
		used, err := s.Revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return fmt.Errorf("check token: %w", err)
		}
		if used {
			return auth.ErrTokenRevoked
		}
	}

	user, err := s.Store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	if err := s.Store.UpdateUser(ctx, user, "password_hash"); err != nil {
		return err
	}
	if s.Revoker != nil {
		if err := s.Revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			s.Logger.Error("USERS", fmt.Sprintf("Failed to revoke reset token for %s: %v", user.Username, err))
		}
	}
	s.Logger.LogSecurity("PASSWORD_RESET", user.Username)
	return nil
}

func (s *Service) notify(ctx context.Context, kind models.AccountNotificationType, user *models.User, token string) {
	if s.Notifier == nil {
		s.Logger.Warn("USERS", fmt.Sprintf("No notifier configured, %s for %s was not delivered", kind, user.Username))
		return
	}
	if err := s.Notifier.NotifyAccount(ctx, accountNotification(kind, user, token)); err != nil {
		s.Logger.Error("USERS", fmt.Sprintf("Failed to send %s for %s: %v", kind, user.Username, err))
	}
}

func accountNotification(kind models.AccountNotificationType, user *models.User, token string) models.AccountNotification {
	return models.AccountNotification{
		Type:       kind,
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Token:      token,
		OccurredAt: time.Now().UTC(),
	}
}

// ChangeEmail moves the account to a new email once the password is confirmed
func (s *Service) ChangeEmail(ctx context.Context, userID, email, password string) (*models.User, error) {
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.Logger.LogSecurity("EMAIL_CHANGE_FAILED", "bad password for "+user.Username)
		return nil, ErrInvalidCredentials
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == user.Email {
		return user, nil
	}
	_, emailTaken, err := s.Store.Exists(ctx, "", email)
	if err != nil {
		return nil, err
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}

	user.Email = email
	if err := s.Store.UpdateUser(ctx, user, "email"); err != nil {
		return nil, err
	}
	s.Logger.Info("USERS", fmt.Sprintf("User %s changed email", user.Username))
	return user, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.Store.GetUserByID(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*models.User, error) {
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var columns []string
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
		columns = append(columns, "first_name")
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
		columns = append(columns, "last_name")
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = *update.PhoneNumber
		columns = append(columns, "phone_number")
	}
	if len(columns) == 0 {
		return user, nil
	}
	if err := s.Store.UpdateUser(ctx, user, columns...); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) AddAddress(ctx context.Context, userID string, req AddressRequest) (*models.Address, error) {
	switch req.AddressType {
	case models.AddressBilling, models.AddressShipping, models.AddressHome:
	default:
		return nil, ErrInvalidAddressType
	}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = DefaultCountry
	}

	address := &models.Address{
		UserID:        userID,
		StreetAddress: req.StreetAddress,
		City:          req.City,
		State:         req.State,
		Country:       country,
		ZipCode:       req.ZipCode,
		AddressType:   req.AddressType,
	}
	if err := s.Store.CreateAddress(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

func (s *Service) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	return s.Store.ListAddresses(ctx, userID)
}

// ShippingAddress prefers a shipping address and falls back to any address.
// It returns nil when the user has none.
func (s *Service) ShippingAddress(ctx context.Context, userID string) (*models.Address, error) {
	addresses, err := s.Store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range addresses {
		if addresses[i].AddressType == models.AddressShipping {
			return &addresses[i], nil
		}
	}
	if len(addresses) > 0 {
		return &addresses[0], nil
	}
	return nil, nil
}
