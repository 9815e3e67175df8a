package valuation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/shared"
)

type stubValuationRepo struct {
	animals   []Animal
	weights   map[int64]float64
	items     []InputItem
	movements map[int64][]StockMovement
	saved     []Record
	nextID    int64

	animalsErr error
	itemsErr   error
	insertErr  error
}

func newStubValuationRepo() *stubValuationRepo {
	return &stubValuationRepo{
		weights:   map[int64]float64{},
		movements: map[int64][]StockMovement{},
		nextID:    1,
	}
}

func (s *stubValuationRepo) ActiveAnimals(_ context.Context, premiseID int64, asOf time.Time) ([]Animal, error) {
	if s.animalsErr != nil {
		return nil, s.animalsErr
	}
	var out []Animal
	for _, a := range s.animals {
		if a.PremiseID == premiseID && !a.CreatedAt.After(asOf) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubValuationRepo) LatestWeights(_ context.Context, animalIDs []int64, _ time.Time) (map[int64]float64, error) {
	out := map[int64]float64{}
	for _, id := range animalIDs {
		if kg, ok := s.weights[id]; ok {
			out[id] = kg
		}
	}
	return out, nil
}

func (s *stubValuationRepo) InputsInStock(_ context.Context, premiseID int64) ([]InputItem, error) {
	if s.itemsErr != nil {
		return nil, s.itemsErr
	}
	var out []InputItem
	for _, item := range s.items {
		if item.PremiseID == premiseID && item.Stock > 0 {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *stubValuationRepo) ReceiptMovements(_ context.Context, inputID int64, asOf time.Time) ([]StockMovement, error) {
	var out []StockMovement
	for _, m := range s.movements[inputID] {
		if !m.At.After(asOf) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubValuationRepo) Insert(_ context.Context, record Record) (Record, error) {
	if s.insertErr != nil {
		return Record{}, s.insertErr
	}
	for _, existing := range s.saved {
		if existing.PremiseID == record.PremiseID && existing.Type == record.Type &&
			existing.Scope == record.Scope && existing.Date.Equal(record.Date) {
			return Record{}, ErrDuplicateRun
		}
	}
	record.ID = s.nextID
	record.CreatedAt = time.Now()
	s.nextID++
	s.saved = append(s.saved, record)
	return record, nil
}

func (s *stubValuationRepo) Get(_ context.Context, id int64) (Record, error) {
	for _, record := range s.saved {
		if record.ID == id {
			return record, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (s *stubValuationRepo) ListByPeriod(_ context.Context, periodID int64) ([]Record, error) {
	var out []Record
	for _, record := range s.saved {
		if record.PeriodID == periodID {
			out = append(out, record)
		}
	}
	return out, nil
}

type stubPremises struct{}

func (stubPremises) GetPremise(_ context.Context, id int64) (firms.Premise, error) {
	if id == 404 {
		return firms.Premise{}, firms.ErrPremiseNotFound
	}
	return firms.Premise{ID: id, FirmID: 1, Name: "La Esperanza"}, nil
}

type stubAuditLog struct {
	entries []audit.Entry
}

func (s *stubAuditLog) Record(_ context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPrincipal = auth.Principal{UserID: 7, FirmIDs: []int64{1}}

func testRunInput(valType Type, method Method) RunInput {
	return RunInput{
		PremiseID: 10,
		PeriodID:  1,
		Date:      time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Type:      valType,
		Method:    method,
	}
}

func TestWeightedAvgUnitCost(t *testing.T) {
	asOf := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	movements := []StockMovement{
		{Kind: MovementEntry, Quantity: 10, UnitCost: decimal.NewFromInt(5), At: asOf.AddDate(0, -2, 0)},
		{Kind: MovementPurchase, Quantity: 20, UnitCost: decimal.NewFromInt(8), At: asOf.AddDate(0, -1, 0)},
	}
	price := weightedAvgUnitCost(movements, asOf)
	require.True(t, price.Equal(decimal.NewFromFloat(7.0)), "got %s", price)

	require.True(t, weightedAvgUnitCost(nil, asOf).IsZero())
}

func TestWeightedAvgIgnoresLaterAndNonReceiptMovements(t *testing.T) {
	asOf := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	movements := []StockMovement{
		{Kind: MovementEntry, Quantity: 10, UnitCost: decimal.NewFromInt(5), At: asOf},
		{Kind: MovementEntry, Quantity: 99, UnitCost: decimal.NewFromInt(100), At: asOf.AddDate(0, 1, 0)},
		{Kind: "exit", Quantity: 50, UnitCost: decimal.NewFromInt(100), At: asOf},
	}
	price := weightedAvgUnitCost(movements, asOf)
	require.True(t, price.Equal(decimal.NewFromInt(5)), "got %s", price)
}

func TestValuateInputsWeightedAverage(t *testing.T) {
	repo := newStubValuationRepo()
	repo.items = []InputItem{
		{ID: 1, PremiseID: 10, CategoryID: 3, CategoryName: "fertilizers", Stock: 30, UnitPrice: decimal.NewFromInt(99)},
	}
	repo.movements[1] = []StockMovement{
		{InputID: 1, Kind: MovementEntry, Quantity: 10, UnitCost: decimal.NewFromInt(5), At: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{InputID: 1, Kind: MovementPurchase, Quantity: 20, UnitCost: decimal.NewFromInt(8), At: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})

	record, err := svc.ValuateInputs(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodWeightedAvg))
	require.NoError(t, err)
	require.Equal(t, ScopeInputs, record.Scope)
	require.Len(t, record.Categories, 1)
	require.True(t, record.Categories[0].UnitPrice.Equal(decimal.NewFromFloat(7.0)),
		"unit price %s", record.Categories[0].UnitPrice)
	// 30 units in stock at 7.0 each.
	require.True(t, record.TotalValue.Equal(decimal.NewFromInt(210)), "total %s", record.TotalValue)
}

func TestValuateInputsHistoricalUsesStoredPrice(t *testing.T) {
	repo := newStubValuationRepo()
	repo.items = []InputItem{
		{ID: 1, PremiseID: 10, CategoryID: 3, CategoryName: "fertilizers", Stock: 4, UnitPrice: decimal.NewFromInt(12)},
	}
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})

	record, err := svc.ValuateInputs(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodHistorical))
	require.NoError(t, err)
	require.True(t, record.TotalValue.Equal(decimal.NewFromInt(48)), "total %s", record.TotalValue)
}

func TestValuateLivestockWeightFallback(t *testing.T) {
	repo := newStubValuationRepo()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.animals = []Animal{
		{ID: 1, PremiseID: 10, CategoryID: 2, CategoryName: "steers", InitialKg: 180, CreatedAt: created},
		{ID: 2, PremiseID: 10, CategoryID: 2, CategoryName: "steers", InitialKg: 200, CreatedAt: created},
	}
	repo.weights[1] = 320 // animal 2 has no weighing, falls back to 200
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})

	record, err := svc.ValuateLivestock(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodMarket))
	require.NoError(t, err)
	require.Equal(t, ScopeLivestock, record.Scope)
	require.Equal(t, 2, record.Count)
	require.InDelta(t, 520.0, record.TotalQty, 0.001)

	require.Len(t, record.Categories, 1)
	cat := record.Categories[0]
	require.InDelta(t, 260.0, cat.AvgQty, 0.001)
	// market reference price is 520/kg
	require.True(t, cat.UnitPrice.Equal(decimal.NewFromInt(520)))
	require.True(t, record.TotalValue.Equal(decimal.NewFromInt(270400)), "total %s", record.TotalValue)
	require.Equal(t, PriceSourceFallback, record.PriceSource)
}

func TestValuationTotalsAddUpAcrossCategories(t *testing.T) {
	repo := newStubValuationRepo()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.animals = []Animal{
		{ID: 1, PremiseID: 10, CategoryID: 2, CategoryName: "steers", InitialKg: 300, CreatedAt: created},
		{ID: 2, PremiseID: 10, CategoryID: 5, CategoryName: "cows", InitialKg: 400, CreatedAt: created},
	}
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})

	record, err := svc.ValuateLivestock(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodHistorical))
	require.NoError(t, err)
	require.Len(t, record.Categories, 2)
	// ordered by category id
	require.Equal(t, int64(2), record.Categories[0].CategoryID)
	require.Equal(t, int64(5), record.Categories[1].CategoryID)

	sum := decimal.Zero
	for _, cat := range record.Categories {
		require.True(t, cat.TotalValue.Equal(decimal.NewFromFloat(cat.TotalQty).Mul(cat.UnitPrice)))
		sum = sum.Add(cat.TotalValue)
	}
	require.True(t, record.TotalValue.Equal(sum))
}

func TestLivestockAndInputsAreSeparateRecords(t *testing.T) {
	repo := newStubValuationRepo()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.animals = []Animal{{ID: 1, PremiseID: 10, CategoryID: 2, CategoryName: "steers", InitialKg: 300, CreatedAt: created}}
	repo.items = []InputItem{{ID: 1, PremiseID: 10, CategoryID: 3, CategoryName: "seeds", Stock: 5, UnitPrice: decimal.NewFromInt(10)}}
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})
	in := testRunInput(TypeFinal, MethodHistorical)

	_, err := svc.ValuateLivestock(context.Background(), testPrincipal, in)
	require.NoError(t, err)
	_, err = svc.ValuateInputs(context.Background(), testPrincipal, in)
	require.NoError(t, err)
	require.Len(t, repo.saved, 2)

	// same scope again for the same premise/type/date is rejected
	_, err = svc.ValuateInputs(context.Background(), testPrincipal, in)
	require.ErrorIs(t, err, ErrDuplicateRun)
}

func TestRunErrorCodes(t *testing.T) {
	boom := errors.New("connection reset")

	repo := newStubValuationRepo()
	repo.animalsErr = boom
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})
	_, err := svc.ValuateLivestock(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodMarket))
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, CodeAnimalsFetch, runErr.Code)
	require.ErrorIs(t, err, boom)

	repo = newStubValuationRepo()
	repo.itemsErr = boom
	svc = NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})
	_, err = svc.ValuateInputs(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodMarket))
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, CodeInputsFetch, runErr.Code)

	repo = newStubValuationRepo()
	repo.insertErr = boom
	svc = NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})
	_, err = svc.ValuateInputs(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodMarket))
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, CodeSave, runErr.Code)
}

func TestRunRequiresAuthAndFirmAccess(t *testing.T) {
	repo := newStubValuationRepo()
	svc := NewService(testLogger(), repo, stubPremises{}, nil, &stubAuditLog{})
	in := testRunInput(TypeFinal, MethodMarket)

	_, err := svc.ValuateLivestock(context.Background(), auth.Principal{}, in)
	require.ErrorIs(t, err, shared.ErrAuthRequired)

	stranger := auth.Principal{UserID: 3, FirmIDs: []int64{99}}
	_, err = svc.ValuateLivestock(context.Background(), stranger, in)
	require.ErrorIs(t, err, shared.ErrFirmAccessDenied)
	require.Empty(t, repo.saved)
}

func TestRunRejectsUnknownMethod(t *testing.T) {
	svc := NewService(testLogger(), newStubValuationRepo(), stubPremises{}, nil, &stubAuditLog{})
	in := testRunInput(TypeFinal, "fifo")
	_, err := svc.ValuateLivestock(context.Background(), testPrincipal, in)
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRunWritesAuditEntry(t *testing.T) {
	repo := newStubValuationRepo()
	repo.items = []InputItem{{ID: 1, PremiseID: 10, CategoryID: 3, CategoryName: "seeds", Stock: 5, UnitPrice: decimal.NewFromInt(10)}}
	auditLog := &stubAuditLog{}
	svc := NewService(testLogger(), repo, stubPremises{}, nil, auditLog)

	_, err := svc.ValuateInputs(context.Background(), testPrincipal, testRunInput(TypeFinal, MethodHistorical))
	require.NoError(t, err)
	require.Len(t, auditLog.entries, 1)
	require.Equal(t, audit.TypeValuationCreated, auditLog.entries[0].Type)
}
