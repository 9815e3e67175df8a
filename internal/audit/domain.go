// Package audit appends and reads the immutable audit trail. Every period
// lifecycle transition and valuation run writes exactly one entry.
package audit

import "time"

// Entry types written by the lifecycle and valuation modules.
const (
	TypePeriodOpened     = "PERIOD_OPENED"
	TypePeriodClosed     = "PERIOD_CLOSED"
	TypePeriodReopened   = "PERIOD_REOPENED"
	TypePeriodAdjusted   = "PERIOD_ADJUSTED"
	TypeValuationCreated = "VALUATION_CREATED"
	TypeWorkApproved     = "WORK_APPROVED"
	TypeWorkCancelled    = "WORK_CANCELLED"
)

// Entry represents a record stored in audit_entries.
type Entry struct {
	ID          int64
	FirmID      int64
	Type        string
	Description string
	Module      string
	ActorID     int64
	Reference   string
	Meta        map[string]any
	At          time.Time
}

// TimelineFilters narrows timeline queries.
type TimelineFilters struct {
	FirmID   int64
	From     time.Time
	To       time.Time
	Type     string
	Module   string
	Page     int
	PageSize int
}

// PagingInfo describes timeline paging state.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
