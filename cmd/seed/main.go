package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/availability"
	"github.com/hackgods/clinic-access-scheduling/internal/config"
	"github.com/hackgods/clinic-access-scheduling/internal/db"
	"github.com/hackgods/clinic-access-scheduling/internal/identity"
	"github.com/hackgods/clinic-access-scheduling/internal/logging"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

var specialties = []string{
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, logger, 40)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	patients, err := seedPatients(context.Background(), pool, logger, 2000)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedDependents(context.Background(), pool, logger, patients, 200); err != nil {
		logger.Fatal().Err(err).Msg("seed dependents")
	}

	printTokens(identity.NewTokens(cfg.AuthSecret, cfg.TokenTTL), doctors[0], patients[0], logger)
	logger.Info().Msg("seed complete")
}

// seedDoctors inserts doctors and gives each a weekday schedule. Weekends stay
// at the inactive default.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	schedules := availability.NewPgRepository(tx)
	ids := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+gofakeit.LastName(), spec)
		if err != nil {
			return nil, err
		}

		start := timewindow.MustTimeOfDay(gofakeit.Number(7, 10), 0)
		end := timewindow.MustTimeOfDay(gofakeit.Number(15, 19), 0)
		for _, wd := range timewindow.AllWeekdays {
			day := availability.DefaultDay(id, wd)
			if wd < timewindow.Saturday {
				day.IsActive = true
				day.StartTime = start
				day.EndTime = end
			}
			if err := schedules.UpsertDay(ctx, day); err != nil {
				return nil, fmt.Errorf("doctor %s %s: %w", id, wd, err)
			}
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			birth := gofakeit.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Now().AddDate(-1, 0, 0))

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, birth_date, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email(), timewindow.DateOf(birth))
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	logger.Info().Msg("patients seeded")
	return ids, nil
}

// seedDependents links the first count patients as guardians of the next
// count patients.
func seedDependents(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, patients []uuid.UUID, count int) error {
	if 2*count > len(patients) {
		count = len(patients) / 2
	}
	logger.Info().Int("count", count).Msg("seeding dependents")

	batch := &pgx.Batch{}
	for i := 0; i < count; i++ {
		batch.Queue(`
			INSERT INTO patient_dependents (guardian_id, dependent_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, patients[i], patients[count+i])
	}
	return pool.SendBatch(ctx, batch).Close()
}

// printTokens writes ready-to-use bearer tokens for local testing.
func printTokens(tokens *identity.Tokens, doctorID, patientID uuid.UUID, logger zerolog.Logger) {
	subjects := []identity.Subject{
		{ID: uuid.New(), Role: identity.RoleAdmin},
		{ID: doctorID, Role: identity.RoleDoctor},
		{ID: patientID, Role: identity.RolePatient},
	}
	for _, s := range subjects {
		raw, err := tokens.Issue(s)
		if err != nil {
			logger.Error().Err(err).Str("role", string(s.Role)).Msg("issue token")
			continue
		}
		fmt.Fprintf(os.Stdout, "%-8s %s\n%s\n\n", s.Role, s.ID, raw)
	}
}
