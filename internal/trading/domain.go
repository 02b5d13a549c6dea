// Package trading manages trading accounts, their broker links, and trades.
package trading

import "time"

// AccountPhase enumerates the lifecycle stages of a funded account.
type AccountPhase string

const (
	PhaseEvaluation AccountPhase = "evaluation"
	PhaseFunded     AccountPhase = "funded"
	PhaseBreached   AccountPhase = "breached"
)

// Account is a propfirm trading account owned by a user.
type Account struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"user_id"`
	PropfirmID *int64       `json:"propfirm_id,omitempty"`
	Label      string       `json:"label"`
	Phase      AccountPhase `json:"phase"`
	Balance    float64      `json:"balance"`
	Currency   string       `json:"currency"`
	IsActive   bool         `json:"is_active"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is one executed position on a trading account.
type Trade struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	SymbolID   int64      `json:"symbol_id"`
	Side       TradeSide  `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	Pnl        *float64   `json:"pnl,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// AccountLink connects a trading account to a broker login used for
// execution or data mirroring.
type AccountLink struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"account_id"`
	BrokerID      int64     `json:"broker_id"`
	ExternalLogin string    `json:"external_login"`
	Server        string    `json:"server"`
	LinkedAt      time.Time `json:"linked_at"`
}
