package trading

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RepositoryPort defines data access methods for trading entities.
type RepositoryPort interface {
	ListAccountsByUser(ctx context.Context, userID int64) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)

	ListTradesByAccount(ctx context.Context, accountID int64) ([]Trade, error)
	CreateTrade(ctx context.Context, trade Trade) (Trade, error)

	ListLinksByAccount(ctx context.Context, accountID int64) ([]AccountLink, error)
	CreateLink(ctx context.Context, link AccountLink) (AccountLink, error)
	DeleteLink(ctx context.Context, id int64) error
}

// Service handles trading business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListAccounts returns the user's trading accounts.
func (s *Service) ListAccounts(ctx context.Context, userID int64) ([]Account, error) {
	return s.repo.ListAccountsByUser(ctx, userID)
}

// GetAccount fetches one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// CreateAccount stores a new trading account.
func (s *Service) CreateAccount(ctx context.Context, account Account) (Account, error) {
	account.Label = strings.TrimSpace(account.Label)
	if account.Label == "" {
		return Account{}, errors.New("trading: account label required")
	}
	if account.Phase == "" {
		account.Phase = PhaseEvaluation
	}
	if account.Currency == "" {
		account.Currency = "USD"
	}
	return s.repo.CreateAccount(ctx, account)
}

// ListTrades returns trades for an account, newest first.
func (s *Service) ListTrades(ctx context.Context, accountID int64) ([]Trade, error) {
	return s.repo.ListTradesByAccount(ctx, accountID)
}

// RecordTrade validates and stores a trade. A closed trade carries both exit
// price and close time.
func (s *Service) RecordTrade(ctx context.Context, trade Trade) (Trade, error) {
	if trade.Side != SideBuy && trade.Side != SideSell {
		return Trade{}, errors.New("trading: side must be buy or sell")
	}
	if trade.Quantity <= 0 {
		return Trade{}, errors.New("trading: quantity must be positive")
	}
	if trade.OpenedAt.IsZero() {
		trade.OpenedAt = time.Now()
	}
	if (trade.ExitPrice == nil) != (trade.ClosedAt == nil) {
		return Trade{}, errors.New("trading: exit price and close time go together")
	}
	return s.repo.CreateTrade(ctx, trade)
}

// ListLinks returns the broker links for an account.
func (s *Service) ListLinks(ctx context.Context, accountID int64) ([]AccountLink, error) {
	return s.repo.ListLinksByAccount(ctx, accountID)
}

// LinkBroker connects an account to a broker login.
func (s *Service) LinkBroker(ctx context.Context, link AccountLink) (AccountLink, error) {
	link.ExternalLogin = strings.TrimSpace(link.ExternalLogin)
	if link.ExternalLogin == "" {
		return AccountLink{}, errors.New("trading: external login required")
	}
	return s.repo.CreateLink(ctx, link)
}

// UnlinkBroker removes a broker link.
func (s *Service) UnlinkBroker(ctx context.Context, id int64) error {
	return s.repo.DeleteLink(ctx, id)
}
