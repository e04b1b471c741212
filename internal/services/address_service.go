package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/example/orderledger/internal/models"
	"github.com/example/orderledger/internal/store"
)

// AddressInput is a shipping address submitted by its owner.
type AddressInput struct {
	Label       string
	AddressLine string
	Apartment   string
	City        string
	District    string
	PostalCode  string
	IsDefault   bool
}

// AddressService manages the shipping addresses referenced by physical orders.
type AddressService struct {
	ledger store.Ledger
}

func NewAddressService(ledger store.Ledger) *AddressService {
	return &AddressService{ledger: ledger}
}

func (s *AddressService) List(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	addresses, err := s.ledger.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if addresses == nil {
		addresses = []models.UserAddress{}
	}
	return addresses, nil
}

func (s *AddressService) Create(ctx context.Context, userID uuid.UUID, in AddressInput) (*models.UserAddress, error) {
	if strings.TrimSpace(in.AddressLine) == "" || strings.TrimSpace(in.City) == "" {
		return nil, ValidationError("address line and city are required")
	}
	address := &models.UserAddress{
		UserID:      userID,
		Label:       in.Label,
		AddressLine: in.AddressLine,
		Apartment:   in.Apartment,
		City:        in.City,
		District:    in.District,
		PostalCode:  in.PostalCode,
		IsDefault:   in.IsDefault,
	}
	if err := s.ledger.CreateAddress(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	ok, err := s.ledger.DeleteAddress(ctx, addressID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return NotFoundError("address not found")
	}
	return nil
}
