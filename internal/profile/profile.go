// Package profile upserts patient profiles for authenticated subjects.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/identifier"
	"github.com/hackgods/clinic-booking-engine/internal/store"
)

var (
	ErrInvalid    = errors.New("invalid profile")
	ErrEmailTaken = errors.New("email already registered to another profile")
	ErrForbidden  = errors.New("store denied permission")
	ErrStore      = errors.New("store failure")
)

const tablePatients = "patients"

var profileColumns = []any{store.Text("id"), "name", "email", "phone", "created_at", "updated_at"}

type Profile struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Writer is the part of store.Store the upsert needs.
type Writer interface {
	Insert(ctx context.Context, collection string, rec store.Record, returning []any, scan func(store.Row) error) (int, error)
	Update(ctx context.Context, collection string, set store.Record, filters []store.Filter, returning []any, scan func(store.Row) error) (int, error)
}

type Service struct {
	db     Writer
	logger zerolog.Logger
}

func NewService(db Writer, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Upsert inserts the profile and, when a row with the same key already
// exists, updates it instead. An update that matches nothing means the
// conflicting key is another profile's email.
func (s *Service) Upsert(ctx context.Context, p Profile) (*Profile, error) {
	p.ID = identifier.EnsureCanonical(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)

	if p.ID == identifier.Zero {
		return nil, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if p.Name == "" || p.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalid)
	}

	var out Profile
	scan := func(row store.Row) error {
		return row.Scan(&out.ID, &out.Name, &out.Email, &out.Phone, &out.CreatedAt, &out.UpdatedAt)
	}

	_, err := s.db.Insert(ctx, tablePatients, store.Record{
		"id":    p.ID,
		"name":  p.Name,
		"email": p.Email,
		"phone": p.Phone,
	}, profileColumns, scan)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, store.ErrUniqueViolation) {
		return nil, translate(err)
	}

	s.logger.Debug().Str("profile_id", p.ID).Msg("profile exists, updating")

	n, err := s.db.Update(ctx, tablePatients, store.Record{
		"name":       p.Name,
		"email":      p.Email,
		"phone":      p.Phone,
		"updated_at": store.Now(),
	}, []store.Filter{store.Eq("id", p.ID)}, profileColumns, scan)
	if err != nil {
		return nil, translate(err)
	}
	if n == 0 {
		return nil, ErrEmailTaken
	}
	return &out, nil
}

var writeOutcomes = store.WriteOutcomes[error]{
	Conflict: func(error) error { return ErrEmailTaken },
	Denied:   func(err error) error { return fmt.Errorf("%w: %v", ErrForbidden, err) },
	Failed:   func(err error) error { return fmt.Errorf("%w: %v", ErrStore, err) },
}

func translate(err error) error {
	return store.TranslateWrite(err, writeOutcomes)
}
