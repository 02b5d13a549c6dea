package trading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/propdesk/internal/shared"
)

type mockRepo struct {
	accounts map[int64]Account
	trades   map[int64][]Trade
	links    map[int64][]AccountLink
	nextID   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		accounts: make(map[int64]Account),
		trades:   make(map[int64][]Trade),
		links:    make(map[int64][]AccountLink),
		nextID:   1,
	}
}

func (m *mockRepo) ListAccountsByUser(ctx context.Context, userID int64) ([]Account, error) {
	var out []Account
	for _, acc := range m.accounts {
		if acc.UserID == userID {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (m *mockRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return acc, nil
}

func (m *mockRepo) CreateAccount(ctx context.Context, account Account) (Account, error) {
	account.ID = m.nextID
	m.nextID++
	account.IsActive = true
	m.accounts[account.ID] = account
	return account, nil
}

func (m *mockRepo) ListTradesByAccount(ctx context.Context, accountID int64) ([]Trade, error) {
	return m.trades[accountID], nil
}

func (m *mockRepo) CreateTrade(ctx context.Context, trade Trade) (Trade, error) {
	trade.ID = m.nextID
	m.nextID++
	m.trades[trade.AccountID] = append(m.trades[trade.AccountID], trade)
	return trade, nil
}

func (m *mockRepo) ListLinksByAccount(ctx context.Context, accountID int64) ([]AccountLink, error) {
	return m.links[accountID], nil
}

func (m *mockRepo) CreateLink(ctx context.Context, link AccountLink) (AccountLink, error) {
	for _, existing := range m.links[link.AccountID] {
		if existing.BrokerID == link.BrokerID && existing.ExternalLogin == link.ExternalLogin {
			return AccountLink{}, shared.ErrConflict
		}
	}
	link.ID = m.nextID
	m.nextID++
	m.links[link.AccountID] = append(m.links[link.AccountID], link)
	return link, nil
}

func (m *mockRepo) DeleteLink(ctx context.Context, id int64) error { return nil }

func TestCreateAccountDefaults(t *testing.T) {
	svc := NewService(newMockRepo())

	acc, err := svc.CreateAccount(context.Background(), Account{UserID: 1, Label: "  FTMO 100k  "})
	require.NoError(t, err)
	assert.Equal(t, "FTMO 100k", acc.Label)
	assert.Equal(t, PhaseEvaluation, acc.Phase)
	assert.Equal(t, "USD", acc.Currency)

	_, err = svc.CreateAccount(context.Background(), Account{UserID: 1})
	assert.Error(t, err, "label required")
}

func TestRecordTradeValidation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_, err := svc.RecordTrade(ctx, Trade{AccountID: 1, SymbolID: 1, Side: "hold", Quantity: 1})
	assert.Error(t, err)

	_, err = svc.RecordTrade(ctx, Trade{AccountID: 1, SymbolID: 1, Side: SideBuy, Quantity: 0})
	assert.Error(t, err)

	exit := 1.2345
	_, err = svc.RecordTrade(ctx, Trade{AccountID: 1, SymbolID: 1, Side: SideBuy, Quantity: 1, ExitPrice: &exit})
	assert.Error(t, err, "exit price without close time")

	trade, err := svc.RecordTrade(ctx, Trade{AccountID: 1, SymbolID: 1, Side: SideBuy, Quantity: 1, EntryPrice: 1.1})
	require.NoError(t, err)
	assert.False(t, trade.OpenedAt.IsZero(), "open time defaulted")

	closedAt := time.Now()
	closed, err := svc.RecordTrade(ctx, Trade{
		AccountID: 1, SymbolID: 1, Side: SideSell, Quantity: 2,
		EntryPrice: 1.2, ExitPrice: &exit, ClosedAt: &closedAt,
	})
	require.NoError(t, err)
	assert.NotNil(t, closed.ExitPrice)
}

func TestLinkBrokerConflicts(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_, err := svc.LinkBroker(ctx, AccountLink{AccountID: 1, BrokerID: 2, ExternalLogin: " 900123 "})
	require.NoError(t, err)

	_, err = svc.LinkBroker(ctx, AccountLink{AccountID: 1, BrokerID: 2, ExternalLogin: "900123"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.LinkBroker(ctx, AccountLink{AccountID: 1, BrokerID: 2, ExternalLogin: "  "})
	assert.Error(t, err)
}
