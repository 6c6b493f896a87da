package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.Username, err)
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &user, nil
}

// FindByIdentifier matches a username or an email, ignoring case.
func (d *DB) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		WhereOr("LOWER(username) = ?", identifier).
		WhereOr("LOWER(email) = ?", identifier).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// Exists reports which of username and email are already registered.
func (d *DB) Exists(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	usernameTaken, err = d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Exists(ctx)
	if err != nil {
		return false, false, err
	}
	emailTaken, err = d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Exists(ctx)
	return usernameTaken, emailTaken, err
}

func (d *DB) UpdateUser(ctx context.Context, user *models.User, columns ...string) error {
	_, err := d.Bun.NewUpdate().Model(user).Column(columns...).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user %s: %w", user.ID, err)
	}
	return nil
}

// ---------------- ADDRESSES ----------------

func (d *DB) CreateAddress(ctx context.Context, address *models.Address) error {
	_, err := d.Bun.NewInsert().Model(address).Returning("id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert address for %s: %w", address.UserID, err)
	}
	return nil
}

func (d *DB) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	var addresses []models.Address
	err := d.Bun.NewSelect().
		Model(&addresses).
		Where("user_id = ?", userID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list addresses for %s: %w", userID, err)
	}
	return addresses, nil
}

func CreateTables(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Address)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}
