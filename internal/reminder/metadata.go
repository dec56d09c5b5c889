package reminder

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"vaccine-tracker/internal/errs"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/store"
)

// Directory looks up the records a reminder snapshot is built from.
type Directory interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetVaccine(ctx context.Context, id int64) (models.Vaccine, error)
	GetClinic(ctx context.Context, id int64) (models.Clinic, error)
}

// Lookup names the records to resolve.
type Lookup struct {
	UserID      string
	VacID       *int64
	ClinicID    *int64
	VaccineName string
}

// Metadata is what the reminder email needs, resolved at schedule time.
type Metadata struct {
	User        models.User
	VaccineName string
	ClinicName  *string
}

// Resolver runs the user, vaccine and clinic lookups concurrently.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve reports failures in a fixed order (user, vaccine, clinic) whichever
// lookup finishes first.
func (r *Resolver) Resolve(ctx context.Context, in Lookup) (Metadata, error) {
	var (
		user    models.User
		vaccine *models.Vaccine
		clinic  *models.Clinic
	)
	var userErr, vaccineErr, clinicErr error

	var g errgroup.Group
	g.Go(func() error {
		u, err := r.dir.GetUser(ctx, in.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			userErr = errs.New(errs.KindNotFound, "User not found or missing email")
		case err != nil:
			userErr = errs.Wrap(errs.KindUpstream, "Error fetching user", err)
		case strings.TrimSpace(u.Email) == "":
			userErr = errs.New(errs.KindNotFound, "User not found or missing email")
		default:
			user = u
		}
		return nil
	})
	if in.VacID != nil {
		g.Go(func() error {
			v, err := r.dir.GetVaccine(ctx, *in.VacID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				vaccineErr = errs.New(errs.KindNotFound, "Vaccine not found")
			case err != nil:
				vaccineErr = errs.Wrap(errs.KindUpstream, "Error fetching vaccine", err)
			default:
				vaccine = &v
			}
			return nil
		})
	}
	if in.ClinicID != nil {
		g.Go(func() error {
			c, err := r.dir.GetClinic(ctx, *in.ClinicID)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				clinicErr = errs.Wrap(errs.KindUpstream, "Error fetching clinic", err)
			default:
				clinic = &c
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range []error{userErr, vaccineErr, clinicErr} {
		if err != nil {
			return Metadata{}, err
		}
	}

	md := Metadata{User: user}
	switch {
	case vaccine != nil && strings.TrimSpace(vaccine.Name) != "":
		md.VaccineName = vaccine.Name
	case strings.TrimSpace(in.VaccineName) != "":
		md.VaccineName = strings.TrimSpace(in.VaccineName)
	default:
		return Metadata{}, errs.New(errs.KindInvalidRequest, "vac_id or vaccine_name is required")
	}
	if clinic != nil && clinic.Name != "" {
		name := clinic.Name
		md.ClinicName = &name
	}
	return md, nil
}
