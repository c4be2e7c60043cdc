package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/internal/store"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const minAddressLength = 10

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("address belongs to another user")
	ErrNotFound     = errors.New("address not found")
	ErrConflict     = errors.New("default address changed concurrently")
)

type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpsertProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) error
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	AddAddress(ctx context.Context, userID string, req models.AddAddressRequest) (*models.Address, error)
	SetDefaultAddress(ctx context.Context, userID, addressID string) error
	DeleteAddress(ctx context.Context, userID, addressID string) error
}

// Service manages the signed-in user's profile and saved addresses. Every
// call is scoped to the user id taken from the access token.
type Service struct {
	store  Store
	logger *logrus.Logger
}

func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Profile returns the stored profile, or an empty one for users that never
// saved theirs. The email always comes from the identity provider.
func (s *Service) Profile(ctx context.Context, userID, email string) (*models.UserProfile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		p, err = &models.UserProfile{ID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	p.Email = email
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) error {
	req.FullName = strings.TrimSpace(req.FullName)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.FullName == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if err := s.store.UpsertProfile(ctx, userID, req); err != nil {
		return err
	}
	s.logger.WithField("user_id", userID).Info("Profile updated")
	return nil
}

func (s *Service) Addresses(ctx context.Context, userID string) ([]models.Address, error) {
	return s.store.ListAddresses(ctx, userID)
}

func (s *Service) AddAddress(ctx context.Context, userID string, req models.AddAddressRequest) (*models.Address, error) {
	req.FullAddress = strings.TrimSpace(req.FullAddress)
	req.Label = strings.TrimSpace(req.Label)
	if len(req.FullAddress) < minAddressLength {
		return nil, fmt.Errorf("%w: please enter a valid address", ErrInvalidInput)
	}

	a, err := s.store.AddAddress(ctx, userID, req)
	if errors.Is(err, store.ErrDefaultConflict) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"address_id": a.ID,
		"is_default": a.IsDefault,
	}).Info("Address added")
	return a, nil
}

// DeleteAddress refuses with ErrForbidden unless the address is the
// caller's.
func (s *Service) DeleteAddress(ctx context.Context, userID, addressID string) error {
	if _, err := uuid.Parse(addressID); err != nil {
		return ErrForbidden
	}
	err := s.store.DeleteAddress(ctx, userID, addressID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"address_id": addressID,
		}).Warn("Refused to delete address not owned by user")
		return ErrForbidden
	}
	return err
}

// SetDefault makes addressID the only default address of the user.
func (s *Service) SetDefault(ctx context.Context, userID, addressID string) error {
	if _, err := uuid.Parse(addressID); err != nil {
		return ErrNotFound
	}
	err := s.store.SetDefaultAddress(ctx, userID, addressID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDefaultConflict):
		return ErrConflict
	}
	return err
}
