// Package masterdata manages the reference entities trades hang off of:
// propfirms, brokers, and symbols. Plain persistence gated by RBAC; no
// business rules live here.
package masterdata

import "time"

// Propfirm is a proprietary trading firm offering funded accounts.
type Propfirm struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Website     string    `json:"website"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Broker is an execution venue a trading account connects through.
type Broker struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Website     string    `json:"website"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Symbol is a tradeable instrument.
type Symbol struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	AssetClass string    `json:"asset_class"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
