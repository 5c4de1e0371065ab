package storage

import (
	"context"
	"fmt"

	"github.com/cuemby/cadence/pkg/security"
	"github.com/cuemby/cadence/pkg/types"
)

// SealedStore encrypts account access tokens before they reach the
// underlying store and decrypts them on read. Every other method passes
// through.
type SealedStore struct {
	Store
	sealer *security.TokenSealer
}

// NewSealedStore wraps store with a sealer derived from passphrase
func NewSealedStore(store Store, passphrase string) (*SealedStore, error) {
	sealer, err := security.NewTokenSealerFromPassphrase(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create token sealer: %w", err)
	}
	return &SealedStore{Store: store, sealer: sealer}, nil
}

func (s *SealedStore) CreateAccount(ctx context.Context, account *types.Account) error {
	sealed, err := s.sealer.Seal(account.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token for %s: %w", account.ID, err)
	}

	stored := *account
	stored.AccessToken = sealed
	return s.Store.CreateAccount(ctx, &stored)
}

func (s *SealedStore) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	account, err := s.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *SealedStore) ListAccounts(ctx context.Context) ([]*types.Account, error) {
	accounts, err := s.Store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if err := s.open(account); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func (s *SealedStore) open(account *types.Account) error {
	token, err := s.sealer.Open(account.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to open access token for %s: %w", account.ID, err)
	}
	account.AccessToken = token
	return nil
}
