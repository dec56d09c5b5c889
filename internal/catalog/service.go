package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	ca "github.com/patrickmn/go-cache"

	"vaccine-tracker/internal/errs"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/store"
)

const (
	vaccinesKey = "vaccines"
	clinicsKey  = "clinics"
)

// Repository is the subset of the store the catalog reads from.
type Repository interface {
	ListVaccines(ctx context.Context) ([]models.Vaccine, error)
	SearchVaccines(ctx context.Context, q string) ([]models.Vaccine, error)
	ListClinics(ctx context.Context) ([]models.Clinic, error)
	GetClinic(ctx context.Context, id int64) (models.Clinic, error)
}

// Service serves vaccine and clinic lookups. Full listings are held in a
// local cache for ttl; searches and point lookups always hit the store.
type Service struct {
	repo Repository
	c    *ca.Cache
}

func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{repo: repo, c: ca.New(ttl, 2*ttl)}
}

func (s *Service) Vaccines(ctx context.Context) ([]models.Vaccine, error) {
	if v, ok := s.c.Get(vaccinesKey); ok {
		return v.([]models.Vaccine), nil
	}
	list, err := s.repo.ListVaccines(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "failed to load vaccines", err)
	}
	s.c.SetDefault(vaccinesKey, list)
	return list, nil
}

func (s *Service) SearchVaccines(ctx context.Context, q string) ([]models.Vaccine, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errs.New(errs.KindInvalidRequest, "query parameter q is required")
	}
	list, err := s.repo.SearchVaccines(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "failed to search vaccines", err)
	}
	return list, nil
}

func (s *Service) Clinics(ctx context.Context) ([]models.Clinic, error) {
	if v, ok := s.c.Get(clinicsKey); ok {
		return v.([]models.Clinic), nil
	}
	list, err := s.repo.ListClinics(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "failed to load clinics", err)
	}
	s.c.SetDefault(clinicsKey, list)
	return list, nil
}

func (s *Service) Clinic(ctx context.Context, id int64) (models.Clinic, error) {
	c, err := s.repo.GetClinic(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Clinic{}, errs.New(errs.KindNotFound, "Clinic not found")
	}
	if err != nil {
		return models.Clinic{}, errs.Wrap(errs.KindUpstream, "failed to load clinic", err)
	}
	return c, nil
}

// Flush drops cached listings.
func (s *Service) Flush() {
	s.c.Flush()
}
