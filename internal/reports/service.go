package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
	"github.com/pampa-erp/pampa-erp/internal/works"
)

// PeriodPort loads period state.
type PeriodPort interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	ListAdjustments(ctx context.Context, periodID int64) ([]periods.Adjustment, error)
}

// WorksPort counts work records still pending approval.
type WorksPort interface {
	CountPending(ctx context.Context, periodID int64, kind works.Kind) (int, error)
}

// ValuationPort lists a period's valuation records.
type ValuationPort interface {
	ListByPeriod(ctx context.Context, periodID int64) ([]valuation.Record, error)
}

// ValuationSummary condenses one valuation record.
type ValuationSummary struct {
	Scope      valuation.Scope  `json:"scope"`
	Type       valuation.Type   `json:"type"`
	Method     valuation.Method `json:"method"`
	Date       string           `json:"date"`
	PremiseID  int64            `json:"premise_id"`
	Count      int              `json:"count"`
	TotalValue decimal.Decimal  `json:"total_value"`
}

// PeriodSummary is the cached read model for a period.
type PeriodSummary struct {
	PeriodID                 int64              `json:"period_id"`
	FirmID                   int64              `json:"firm_id"`
	Name                     string             `json:"name"`
	Status                   periods.Status     `json:"status"`
	Locked                   bool               `json:"is_locked"`
	PendingAgriculturalWorks int                `json:"pending_agricultural_works"`
	PendingLivestockWorks    int                `json:"pending_livestock_works"`
	Valuations               []ValuationSummary `json:"valuations"`
	TotalFinalValue          decimal.Decimal    `json:"total_final_value"`
	AdjustmentCount          int                `json:"adjustment_count"`
	GeneratedAt              time.Time          `json:"generated_at"`
}

// Service builds period summaries. Concurrent requests for the same period
// share one build via singleflight; results live in Redis for the cache TTL.
type Service struct {
	cache      *Cache
	periods    PeriodPort
	works      WorksPort
	valuations ValuationPort
	group      singleflight.Group
}

// NewService constructs a Service.
func NewService(cache *Cache, periodPort PeriodPort, worksPort WorksPort, valuationPort ValuationPort) *Service {
	return &Service{cache: cache, periods: periodPort, works: worksPort, valuations: valuationPort}
}

// PeriodSummary returns the period's aggregated state, served from cache when
// fresh.
func (s *Service) PeriodSummary(ctx context.Context, periodID int64) (PeriodSummary, error) {
	key := keyPeriodSummary(periodID)
	var summary PeriodSummary
	err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		result, err, _ := s.sharedBuild(ctx, key, periodID)
		return result, err
	})
	if err != nil {
		return PeriodSummary{}, err
	}
	return summary, nil
}

func (s *Service) sharedBuild(ctx context.Context, key string, periodID int64) (PeriodSummary, error, bool) {
	resultCh := s.group.DoChan(key, func() (interface{}, error) {
		return s.build(ctx, periodID)
	})
	select {
	case <-ctx.Done():
		return PeriodSummary{}, ctx.Err(), false
	case res := <-resultCh:
		summary, _ := res.Val.(PeriodSummary)
		return summary, res.Err, res.Shared
	}
}

func (s *Service) build(ctx context.Context, periodID int64) (PeriodSummary, error) {
	period, err := s.periods.Get(ctx, periodID)
	if err != nil {
		return PeriodSummary{}, err
	}

	summary := PeriodSummary{
		PeriodID:        period.ID,
		FirmID:          period.FirmID,
		Name:            period.Name,
		Status:          period.Status,
		Locked:          period.Locked,
		TotalFinalValue: decimal.Zero,
		GeneratedAt:     time.Now().UTC(),
	}

	if summary.PendingAgriculturalWorks, err = s.works.CountPending(ctx, periodID, works.KindAgricultural); err != nil {
		return PeriodSummary{}, err
	}
	if summary.PendingLivestockWorks, err = s.works.CountPending(ctx, periodID, works.KindLivestock); err != nil {
		return PeriodSummary{}, err
	}

	records, err := s.valuations.ListByPeriod(ctx, periodID)
	if err != nil {
		return PeriodSummary{}, err
	}
	for _, record := range records {
		summary.Valuations = append(summary.Valuations, ValuationSummary{
			Scope:      record.Scope,
			Type:       record.Type,
			Method:     record.Method,
			Date:       record.Date.Format("2006-01-02"),
			PremiseID:  record.PremiseID,
			Count:      record.Count,
			TotalValue: record.TotalValue,
		})
		if record.Type == valuation.TypeFinal {
			summary.TotalFinalValue = summary.TotalFinalValue.Add(record.TotalValue)
		}
	}

	adjustments, err := s.periods.ListAdjustments(ctx, periodID)
	if err != nil {
		return PeriodSummary{}, err
	}
	summary.AdjustmentCount = len(adjustments)
	return summary, nil
}
