// Package firms exposes the firm and premise master data used to scope
// periods and valuations.
package firms

import (
	"errors"
	"time"
)

// Firm is the accounting entity that owns periods, premises, and users.
type Firm struct {
	ID        int64
	Name      string
	TaxID     string
	CreatedAt time.Time
}

// Premise is a physical land holding belonging to a firm.
type Premise struct {
	ID        int64
	FirmID    int64
	Name      string
	Location  string
	Hectares  float64
	CreatedAt time.Time
}

// ErrPremiseNotFound indicates the premise does not exist.
var ErrPremiseNotFound = errors.New("firms: premise not found")

// ErrFirmNotFound indicates the firm does not exist.
var ErrFirmNotFound = errors.New("firms: firm not found")
