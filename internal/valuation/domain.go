// Package valuation computes and persists inventory valuations for livestock
// and consumable inputs. Records are append-only: one run produces one record
// per scope and is never mutated afterwards.
package valuation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Method is the pricing policy applied to a valuation run.
type Method string

const (
	MethodWeightedAvg Method = "weighted_avg"
	MethodHistorical  Method = "historical"
	MethodMarket      Method = "market"
	MethodMixed       Method = "mixed"
)

// ErrUnknownMethod indicates an unsupported pricing method.
var ErrUnknownMethod = errors.New("valuation: unknown pricing method")

// ParseMethod validates a pricing method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodWeightedAvg, MethodHistorical, MethodMarket, MethodMixed:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Type distinguishes the opening balance from the closing one.
type Type string

const (
	TypeInitial Type = "INITIAL"
	TypeFinal   Type = "FINAL"
)

// ErrUnknownType indicates an unsupported valuation type.
var ErrUnknownType = errors.New("valuation: unknown valuation type")

// ParseType validates a valuation type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeInitial, TypeFinal:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Scope identifies which inventory side a record covers. Livestock and input
// valuations are separate records even when run for the same close event.
type Scope string

const (
	ScopeLivestock Scope = "LIVESTOCK"
	ScopeInputs    Scope = "INPUTS"
)

// CategoryAggregate is the per-category breakdown of a run. The list is
// ordered by category id so output never depends on map iteration order.
type CategoryAggregate struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Count        int             `json:"count"`
	TotalQty     float64         `json:"total_qty"`
	AvgQty       float64         `json:"avg_qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// Record is one persisted valuation.
type Record struct {
	ID          int64               `json:"id"`
	FirmID      int64               `json:"firm_id"`
	PremiseID   int64               `json:"premise_id"`
	PeriodID    int64               `json:"period_id"`
	Date        time.Time           `json:"date"`
	Type        Type                `json:"type"`
	Scope       Scope               `json:"scope"`
	Method      Method              `json:"method"`
	PriceSource string              `json:"price_source"`
	Count       int                 `json:"count"`
	TotalQty    float64             `json:"total_qty"`
	TotalValue  decimal.Decimal     `json:"total_value"`
	Categories  []CategoryAggregate `json:"categories"`
	Notes       string              `json:"notes"`
	CreatedBy   int64               `json:"created_by"`
	CreatedAt   time.Time           `json:"created_at"`
}

// RunInput captures a valuation run request.
type RunInput struct {
	PremiseID   int64
	PeriodID    int64
	Date        time.Time
	Type        Type
	Method      Method
	PriceSource string
	Notes       string
}

// Animal is a livestock head considered by a run.
type Animal struct {
	ID           int64
	PremiseID    int64
	CategoryID   int64
	CategoryName string
	InitialKg    float64
	CreatedAt    time.Time
}

// InputItem is a consumable stock item considered by a run.
type InputItem struct {
	ID           int64
	PremiseID    int64
	CategoryID   int64
	CategoryName string
	Stock        float64
	UnitPrice    decimal.Decimal
}

// StockMovement is a historical receipt of an input item.
type StockMovement struct {
	InputID  int64
	Kind     string
	Quantity float64
	UnitCost decimal.Decimal
	At       time.Time
}

// Receipt movement kinds that feed the weighted-average cost.
const (
	MovementEntry    = "entry"
	MovementPurchase = "purchase"
)

// Run failure codes.
const (
	CodeAnimalsFetch = "ANIMALS_FETCH_ERROR"
	CodeInputsFetch  = "INPUTS_FETCH_ERROR"
	CodeSave         = "VALUATION_SAVE_ERROR"
)

// RunError tags an infrastructure failure with the step that raised it. Runs
// are single-shot: no retry is attempted.
type RunError struct {
	Code string
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("valuation: %s: %v", e.Code, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// ErrDuplicateRun indicates a run already exists for the same premise, type,
// date and scope.
var ErrDuplicateRun = errors.New("valuation: run already recorded for premise/type/date")

// ErrRecordNotFound indicates a valuation record could not be loaded.
var ErrRecordNotFound = errors.New("valuation: record not found")
