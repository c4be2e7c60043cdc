package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/pkg/models"
)

var ErrDefaultConflict = errors.New("another default address was set concurrently")

func (s *Store) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	query := `
		SELECT id, user_id, COALESCE(label, ''), full_address, is_default, created_at
		FROM addresses WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := []models.Address{}
	for rows.Next() {
		var a models.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Label, &a.FullAddress, &a.IsDefault, &a.CreatedAt); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// lockUserAddresses serializes default-address changes for one user. Without
// it two concurrent clear-then-set transactions can both leave a default.
func lockUserAddresses(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `SELECT id FROM addresses WHERE user_id = $1 FOR UPDATE`, userID)
	return err
}

func clearDefault(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = false WHERE user_id = $1 AND is_default = true`, userID)
	return err
}

func (s *Store) AddAddress(ctx context.Context, userID string, req models.AddAddressRequest) (*models.Address, error) {
	a := &models.Address{
		ID:          uuid.NewString(),
		UserID:      userID,
		Label:       req.Label,
		FullAddress: req.FullAddress,
		IsDefault:   req.IsDefault,
	}
	insert := `
		INSERT INTO addresses (id, user_id, label, full_address, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	if !req.IsDefault {
		err := s.db.QueryRowContext(ctx, insert, a.ID, userID, nullString(a.Label), a.FullAddress, false).
			Scan(&a.CreatedAt)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockUserAddresses(ctx, tx, userID); err != nil {
		return nil, err
	}
	if err := clearDefault(ctx, tx, userID); err != nil {
		return nil, err
	}
	if err := tx.QueryRowContext(ctx, insert, a.ID, userID, nullString(a.Label), a.FullAddress, true).
		Scan(&a.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDefaultConflict
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

// SetDefaultAddress clears the user's current default and sets a new one in
// one transaction.
func (s *Store) SetDefaultAddress(ctx context.Context, userID, addressID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockUserAddresses(ctx, tx, userID); err != nil {
		return err
	}
	if err := clearDefault(ctx, tx, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = true WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDefaultConflict
		}
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAddress deletes an address owned by userID.
func (s *Store) DeleteAddress(ctx context.Context, userID, addressID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p := &models.UserProfile{}
	var updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(full_name, ''), COALESCE(avatar_url, ''), COALESCE(phone_number, ''), updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.PhoneNumber, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		p.UpdatedAt = &updatedAt.Time
	}
	return p, nil
}

// UpsertProfile creates the profile row on first write; identities live in
// the external identity provider so the row may not exist yet.
func (s *Store) UpsertProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, phone_number, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name, phone_number = EXCLUDED.phone_number, updated_at = now()
	`, userID, req.FullName, nullString(req.PhoneNumber))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
