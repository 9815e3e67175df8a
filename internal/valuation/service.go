package valuation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/shared"
)

// PremisePort resolves a premise to its owning firm.
type PremisePort interface {
	GetPremise(ctx context.Context, id int64) (firms.Premise, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service runs and reads inventory valuations.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	premises PremisePort
	prices   PricePort
	audit    AuditPort
}

// NewService constructs a Service. prices may be nil; every run then uses the
// reference price table.
func NewService(logger *slog.Logger, repo Repository, premises PremisePort, prices PricePort, auditLog AuditPort) *Service {
	return &Service{logger: logger, repo: repo, premises: premises, prices: prices, audit: auditLog}
}

// Get loads a valuation record.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	return s.repo.Get(ctx, id)
}

// ListByPeriod returns all valuation records tied to a period.
func (s *Service) ListByPeriod(ctx context.Context, periodID int64) ([]Record, error) {
	return s.repo.ListByPeriod(ctx, periodID)
}

// ValuateLivestock values all active animals on the premise as of the run
// date. Each animal weighs its latest weighing at or before the date, falling
// back to its initial recorded weight.
func (s *Service) ValuateLivestock(ctx context.Context, principal auth.Principal, in RunInput) (Record, error) {
	premise, err := s.authorizeRun(ctx, principal, in)
	if err != nil {
		return Record{}, err
	}

	animals, err := s.repo.ActiveAnimals(ctx, in.PremiseID, in.Date)
	if err != nil {
		return Record{}, &RunError{Code: CodeAnimalsFetch, Err: err}
	}
	animalIDs := make([]int64, 0, len(animals))
	for _, a := range animals {
		animalIDs = append(animalIDs, a.ID)
	}
	weights, err := s.repo.LatestWeights(ctx, animalIDs, in.Date)
	if err != nil {
		return Record{}, &RunError{Code: CodeAnimalsFetch, Err: err}
	}

	type bucket struct {
		name    string
		head    int
		totalKg float64
	}
	buckets := map[int64]*bucket{}
	for _, a := range animals {
		kg, ok := weights[a.ID]
		if !ok {
			kg = a.InitialKg
		}
		b := buckets[a.CategoryID]
		if b == nil {
			b = &bucket{name: a.CategoryName}
			buckets[a.CategoryID] = b
		}
		b.head++
		b.totalKg += kg
	}

	categoryIDs := make([]int64, 0, len(buckets))
	for id := range buckets {
		categoryIDs = append(categoryIDs, id)
	}
	sort.Slice(categoryIDs, func(i, j int) bool { return categoryIDs[i] < categoryIDs[j] })

	record := Record{
		FirmID:      premise.FirmID,
		PremiseID:   in.PremiseID,
		PeriodID:    in.PeriodID,
		Date:        in.Date,
		Type:        in.Type,
		Scope:       ScopeLivestock,
		Method:      in.Method,
		PriceSource: in.PriceSource,
		Notes:       in.Notes,
		CreatedBy:   principal.UserID,
		TotalValue:  decimal.Zero,
	}
	usedFallback := false
	for _, categoryID := range categoryIDs {
		b := buckets[categoryID]
		price, quoted, err := s.categoryPrice(ctx, categoryID, in.Method, in.Date)
		if err != nil {
			return Record{}, &RunError{Code: CodeAnimalsFetch, Err: err}
		}
		if !quoted {
			usedFallback = true
		}
		totalKg := decimal.NewFromFloat(b.totalKg)
		value := totalKg.Mul(price)
		avgKg := 0.0
		if b.head > 0 {
			avgKg = b.totalKg / float64(b.head)
		}
		record.Categories = append(record.Categories, CategoryAggregate{
			CategoryID:   categoryID,
			CategoryName: b.name,
			Count:        b.head,
			TotalQty:     b.totalKg,
			AvgQty:       avgKg,
			UnitPrice:    price,
			TotalValue:   value,
		})
		record.Count += b.head
		record.TotalQty += b.totalKg
		record.TotalValue = record.TotalValue.Add(value)
	}
	if usedFallback && record.PriceSource == "" {
		record.PriceSource = PriceSourceFallback
	}

	return s.save(ctx, record)
}

// ValuateInputs values all stocked consumable inputs on the premise as of the
// run date. This produces a separate record from the livestock valuation even
// when both are requested for the same close event.
func (s *Service) ValuateInputs(ctx context.Context, principal auth.Principal, in RunInput) (Record, error) {
	premise, err := s.authorizeRun(ctx, principal, in)
	if err != nil {
		return Record{}, err
	}

	items, err := s.repo.InputsInStock(ctx, in.PremiseID)
	if err != nil {
		return Record{}, &RunError{Code: CodeInputsFetch, Err: err}
	}

	type bucket struct {
		name  string
		count int
		qty   float64
		value decimal.Decimal
	}
	buckets := map[int64]*bucket{}
	for _, item := range items {
		price := item.UnitPrice
		if in.Method == MethodWeightedAvg {
			movements, err := s.repo.ReceiptMovements(ctx, item.ID, in.Date)
			if err != nil {
				return Record{}, &RunError{Code: CodeInputsFetch, Err: err}
			}
			price = weightedAvgUnitCost(movements, in.Date)
		}
		b := buckets[item.CategoryID]
		if b == nil {
			b = &bucket{name: item.CategoryName, value: decimal.Zero}
			buckets[item.CategoryID] = b
		}
		b.count++
		b.qty += item.Stock
		b.value = b.value.Add(decimal.NewFromFloat(item.Stock).Mul(price))
	}

	categoryIDs := make([]int64, 0, len(buckets))
	for id := range buckets {
		categoryIDs = append(categoryIDs, id)
	}
	sort.Slice(categoryIDs, func(i, j int) bool { return categoryIDs[i] < categoryIDs[j] })

	record := Record{
		FirmID:      premise.FirmID,
		PremiseID:   in.PremiseID,
		PeriodID:    in.PeriodID,
		Date:        in.Date,
		Type:        in.Type,
		Scope:       ScopeInputs,
		Method:      in.Method,
		PriceSource: in.PriceSource,
		Notes:       in.Notes,
		CreatedBy:   principal.UserID,
		TotalValue:  decimal.Zero,
	}
	for _, categoryID := range categoryIDs {
		b := buckets[categoryID]
		unitPrice := decimal.Zero
		if b.qty > 0 {
			unitPrice = b.value.Div(decimal.NewFromFloat(b.qty))
		}
		avgQty := 0.0
		if b.count > 0 {
			avgQty = b.qty / float64(b.count)
		}
		record.Categories = append(record.Categories, CategoryAggregate{
			CategoryID:   categoryID,
			CategoryName: b.name,
			Count:        b.count,
			TotalQty:     b.qty,
			AvgQty:       avgQty,
			UnitPrice:    unitPrice,
			TotalValue:   b.value,
		})
		record.Count += b.count
		record.TotalQty += b.qty
		record.TotalValue = record.TotalValue.Add(b.value)
	}

	return s.save(ctx, record)
}

func (s *Service) authorizeRun(ctx context.Context, principal auth.Principal, in RunInput) (firms.Premise, error) {
	if principal.IsZero() {
		return firms.Premise{}, shared.ErrAuthRequired
	}
	if _, err := ParseMethod(string(in.Method)); err != nil {
		return firms.Premise{}, err
	}
	if _, err := ParseType(string(in.Type)); err != nil {
		return firms.Premise{}, err
	}
	premise, err := s.premises.GetPremise(ctx, in.PremiseID)
	if err != nil {
		return firms.Premise{}, err
	}
	if !principal.CanAccessFirm(premise.FirmID) {
		return firms.Premise{}, shared.ErrFirmAccessDenied
	}
	return premise, nil
}

func (s *Service) categoryPrice(ctx context.Context, categoryID int64, method Method, asOf time.Time) (decimal.Decimal, bool, error) {
	if s.prices != nil {
		price, ok, err := s.prices.CategoryPrice(ctx, categoryID, method, asOf)
		if err != nil {
			return decimal.Zero, false, err
		}
		if ok {
			return price, true, nil
		}
	}
	return fallbackPrice(method), false, nil
}

func (s *Service) save(ctx context.Context, record Record) (Record, error) {
	saved, err := s.repo.Insert(ctx, record)
	if err != nil {
		if errors.Is(err, ErrDuplicateRun) {
			return Record{}, err
		}
		return Record{}, &RunError{Code: CodeSave, Err: err}
	}

	if s.audit != nil {
		auditErr := s.audit.Record(ctx, audit.Entry{
			FirmID:      saved.FirmID,
			Type:        audit.TypeValuationCreated,
			Description: "inventory valuation recorded",
			Module:      "valuation",
			ActorID:     saved.CreatedBy,
			Reference:   strconv.FormatInt(saved.ID, 10),
			Meta: map[string]any{
				"premise_id":  saved.PremiseID,
				"period_id":   saved.PeriodID,
				"scope":       saved.Scope,
				"method":      saved.Method,
				"total_value": saved.TotalValue.String(),
			},
		})
		if auditErr != nil {
			s.logger.Warn("valuation audit entry", slog.Int64("record_id", saved.ID), slog.Any("error", auditErr))
		}
	}
	return saved, nil
}
