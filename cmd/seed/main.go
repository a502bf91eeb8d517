package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-booking-engine/internal/cache"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/identifier"
	"github.com/hackgods/clinic-booking-engine/internal/logging"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

var specialtyNames = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type specialtyRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type providerRow struct {
	ID          string `db:"id"`
	SpecialtyID string `db:"specialty_id"`
	Name        string `db:"name"`
	License     string `db:"license"`
	Location    string `db:"location"`
}

type patientRow struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Phone string `db:"phone"`
}

type options struct {
	providers int
	patients  int
	days      int
	seed      int64
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Populate specialties, providers, patients and availability templates",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.providers, "providers", 40, "number of providers")
	cmd.Flags().IntVar(&opts.patients, "patients", 2000, "number of patients")
	cmd.Flags().IntVar(&opts.days, "days", 14, "days of availability templates from today")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed, 0 for time based")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New("seed", cfg.Env, cfg.LogLevel)

	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(uint64(opts.seed))

	dbx, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbx.Close()

	specialties, err := seedSpecialties(ctx, dbx, logger)
	if err != nil {
		return fmt.Errorf("seed specialties: %w", err)
	}
	providers, err := seedProviders(ctx, dbx, faker, specialties, opts.providers, logger)
	if err != nil {
		return fmt.Errorf("seed providers: %w", err)
	}
	if err := seedPatients(ctx, dbx, faker, opts.patients, logger); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	dates, err := seedTemplates(ctx, dbx, faker, cfg, providers, opts.days, logger)
	if err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}

	invalidateTemplates(ctx, cfg, providers, dates, logger)

	logger.Info().Int64("seed", opts.seed).Msg("seed complete")
	return nil
}

// Specialty ids are small integers promoted to canonical form, so the same
// catalogue is produced on every run.
func seedSpecialties(ctx context.Context, dbx *sqlx.DB, logger zerolog.Logger) ([]specialtyRow, error) {
	rows := make([]specialtyRow, len(specialtyNames))
	for i, name := range specialtyNames {
		rows[i] = specialtyRow{ID: identifier.EnsureCanonical(strconv.Itoa(i + 1)), Name: name}
	}

	_, err := dbx.NamedExecContext(ctx, `
		INSERT INTO specialties (id, name)
		VALUES (:id, :name)
		ON CONFLICT DO NOTHING
	`, rows)
	if err != nil {
		return nil, err
	}

	logger.Info().Int("count", len(rows)).Msg("specialties seeded")
	return rows, nil
}

func seedProviders(ctx context.Context, dbx *sqlx.DB, faker *gofakeit.Faker, specialties []specialtyRow, count int, logger zerolog.Logger) ([]providerRow, error) {
	rows := make([]providerRow, count)
	for i := range rows {
		spec := specialties[i%len(specialties)]
		rows[i] = providerRow{
			ID:          identifier.EnsureCanonical(strconv.Itoa(1000 + i)),
			SpecialtyID: spec.ID,
			Name:        "Dr. " + faker.Name(),
			License:     fmt.Sprintf("CRM-%s %d", faker.StateAbr(), faker.Number(10000, 99999)),
			Location:    faker.City(),
		}
	}

	if count > 0 {
		_, err := dbx.NamedExecContext(ctx, `
			INSERT INTO providers (id, specialty_id, name, license, location)
			VALUES (:id, :specialty_id, :name, :license, :location)
			ON CONFLICT DO NOTHING
		`, rows)
		if err != nil {
			return nil, err
		}
	}

	logger.Info().Int("count", count).Msg("providers seeded")
	return rows, nil
}

func seedPatients(ctx context.Context, dbx *sqlx.DB, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := make([]patientRow, 0, end-offset)
		for i := offset; i < end; i++ {
			batch = append(batch, patientRow{
				ID:    uuid.NewString(),
				Name:  faker.Name(),
				Email: faker.Email(),
				Phone: faker.Phone(),
			})
		}

		_, err := dbx.NamedExecContext(ctx, `
			INSERT INTO patients (id, name, email, phone)
			VALUES (:id, :name, :email, :phone)
			ON CONFLICT DO NOTHING
		`, batch)
		if err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch seeded")
	}
	return nil
}

// seedTemplates gives each provider a random subset of the default slots on
// weekdays, with a few of those marked occupied by external calendars.
func seedTemplates(ctx context.Context, dbx *sqlx.DB, faker *gofakeit.Faker, cfg config.Config, providers []providerRow, days int, logger zerolog.Logger) ([]timeslot.Date, error) {
	today := timeslot.DateOf(time.Now().In(cfg.Location))

	var dates []timeslot.Date
	for i := 0; i < days; i++ {
		d := today.AddDays(i)
		switch d.At(0, cfg.Location).Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		dates = append(dates, d)
	}

	tx, err := dbx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	n := 0
	for _, p := range providers {
		for _, d := range dates {
			var slots, occupied []string
			for _, c := range cfg.DefaultSlots {
				if faker.Float64() < 0.25 {
					continue
				}
				slots = append(slots, c.String())
				if faker.Float64() < 0.1 {
					occupied = append(occupied, c.String())
				}
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO availability_templates (provider_id, date, slots, occupied)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (provider_id, date) DO UPDATE
				SET slots = EXCLUDED.slots, occupied = EXCLUDED.occupied
			`, p.ID, d.String(), pq.Array(nonNil(slots)), pq.Array(nonNil(occupied)))
			if err != nil {
				return nil, err
			}
			n++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger.Info().Int("count", n).Msg("availability templates seeded")
	return dates, nil
}

// invalidateTemplates drops cached templates the seed just rewrote. A missing
// Redis is not an error.
func invalidateTemplates(ctx context.Context, cfg config.Config, providers []providerRow, dates []timeslot.Date, logger zerolog.Logger) {
	rdb, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Debug().Err(err).Msg("redis unavailable, skipping cache invalidation")
		return
	}
	defer rdb.Close()

	tc := cache.NewTemplateCache(nil, rdb, cfg.TemplateCacheTTL, logger)
	for _, p := range providers {
		for _, d := range dates {
			if err := tc.Invalidate(ctx, p.ID, d); err != nil {
				logger.Warn().Err(err).Msg("template cache invalidation failed")
				return
			}
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
