package masterdata

import (
	"context"
	"errors"
	"strings"
)

// RepositoryPort defines data access methods for master data.
type RepositoryPort interface {
	ListPropfirms(ctx context.Context) ([]Propfirm, error)
	CreatePropfirm(ctx context.Context, firm Propfirm) (Propfirm, error)
	DeletePropfirm(ctx context.Context, id int64) error

	ListBrokers(ctx context.Context) ([]Broker, error)
	CreateBroker(ctx context.Context, broker Broker) (Broker, error)
	DeleteBroker(ctx context.Context, id int64) error

	ListSymbols(ctx context.Context) ([]Symbol, error)
	CreateSymbol(ctx context.Context, symbol Symbol) (Symbol, error)
	GetSymbolByCode(ctx context.Context, code string) (Symbol, error)
}

// Service handles master data business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListPropfirms returns all propfirms.
func (s *Service) ListPropfirms(ctx context.Context) ([]Propfirm, error) {
	return s.repo.ListPropfirms(ctx)
}

// CreatePropfirm stores a new propfirm.
func (s *Service) CreatePropfirm(ctx context.Context, firm Propfirm) (Propfirm, error) {
	firm.Name = strings.TrimSpace(firm.Name)
	if firm.Name == "" {
		return Propfirm{}, errors.New("masterdata: propfirm name required")
	}
	return s.repo.CreatePropfirm(ctx, firm)
}

// DeletePropfirm removes a propfirm.
func (s *Service) DeletePropfirm(ctx context.Context, id int64) error {
	return s.repo.DeletePropfirm(ctx, id)
}

// ListBrokers returns all brokers.
func (s *Service) ListBrokers(ctx context.Context) ([]Broker, error) {
	return s.repo.ListBrokers(ctx)
}

// CreateBroker stores a new broker.
func (s *Service) CreateBroker(ctx context.Context, broker Broker) (Broker, error) {
	broker.Name = strings.TrimSpace(broker.Name)
	if broker.Name == "" {
		return Broker{}, errors.New("masterdata: broker name required")
	}
	return s.repo.CreateBroker(ctx, broker)
}

// DeleteBroker removes a broker.
func (s *Service) DeleteBroker(ctx context.Context, id int64) error {
	return s.repo.DeleteBroker(ctx, id)
}

// ListSymbols returns all symbols.
func (s *Service) ListSymbols(ctx context.Context) ([]Symbol, error) {
	return s.repo.ListSymbols(ctx)
}

// CreateSymbol stores a new symbol with a normalized code.
func (s *Service) CreateSymbol(ctx context.Context, symbol Symbol) (Symbol, error) {
	symbol.Code = strings.ToUpper(strings.TrimSpace(symbol.Code))
	if symbol.Code == "" {
		return Symbol{}, errors.New("masterdata: symbol code required")
	}
	return s.repo.CreateSymbol(ctx, symbol)
}

// GetSymbolByCode fetches a symbol by its normalized code.
func (s *Service) GetSymbolByCode(ctx context.Context, code string) (Symbol, error) {
	return s.repo.GetSymbolByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}
