package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/repository"
)

// WalletService exposes read access to wallet balances and history.
type WalletService struct {
	walletRepo *repository.WalletRepository
}

// NewWalletService creates a WalletService.
func NewWalletService(walletRepo *repository.WalletRepository) *WalletService {
	return &WalletService{walletRepo: walletRepo}
}

// GetBalance returns the user's wallet.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return s.walletRepo.GetByUserID(ctx, userID)
}

// GetTransactions returns the user's paginated transaction history.
func (s *WalletService) GetTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.walletRepo.GetTransactions(ctx, userID, limit, offset)
}
