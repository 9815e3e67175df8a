package firms

import "context"

// Service exposes firm and premise lookups to the rest of the application.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetFirm returns a firm by id.
func (s *Service) GetFirm(ctx context.Context, id int64) (Firm, error) {
	return s.repo.GetFirm(ctx, id)
}

// ListFirms returns all firms.
func (s *Service) ListFirms(ctx context.Context) ([]Firm, error) {
	return s.repo.ListFirms(ctx)
}

// GetPremise returns a premise by id, including its owning firm reference.
func (s *Service) GetPremise(ctx context.Context, id int64) (Premise, error) {
	return s.repo.GetPremise(ctx, id)
}

// ListPremises returns premises for a firm.
func (s *Service) ListPremises(ctx context.Context, firmID int64) ([]Premise, error) {
	return s.repo.ListPremises(ctx, firmID)
}
