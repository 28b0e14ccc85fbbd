package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/config"
	"github.com/hackgods/clinic-access-scheduling/internal/db"
	"github.com/hackgods/clinic-access-scheduling/internal/identity"
	"github.com/hackgods/clinic-access-scheduling/internal/logging"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	Contenders  int
	DaysAhead   int
	PostgresDSN string
	AuthSecret  string
	TokenTTL    time.Duration
}

type target struct {
	DoctorID  uuid.UUID
	Specialty string
	Weekday   timewindow.Weekday
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

// roundResult is one slot raced by every contender.
type roundResult struct {
	Date    string
	SlotID  string
	Winners int
	Losers  int
	Errors  int
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	tokens   *identity.Tokens
	logger   zerolog.Logger
	target   target
	patients []uuid.UUID
	confirm  OperationMetrics
	rounds   []roundResult
}

func main() {
	cfg, base := loadConfig()
	logger := logging.New(base.LogLevel, base.Env).With().Str("service", "simulate").Logger()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Int("rounds", cfg.Rounds).
		Int("contenders", cfg.Contenders).
		Str("api", cfg.APIBaseURL).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	tgt, patients, err := loadFixtures(ctx, pgPool, cfg.Contenders)
	if err != nil {
		logger.Fatal().Err(err).Msg("load fixtures")
	}
	logger.Info().
		Str("doctor_id", tgt.DoctorID.String()).
		Str("weekday", tgt.Weekday.Short()).
		Int("patients", len(patients)).
		Msg("fixtures loaded")

	sim := &Simulator{
		config:   cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		tokens:   identity.NewTokens(cfg.AuthSecret, cfg.TokenTTL),
		logger:   logger,
		target:   tgt,
		patients: patients,
	}

	sim.Run(context.Background())
	ok := sim.PrintReport()
	if !ok {
		os.Exit(1)
	}
}

func loadConfig() (SimConfig, config.Config) {
	base, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("failed to load base config")
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Rounds:      getInt("SIM_ROUNDS", 5),
		Contenders:  getInt("SIM_CONTENDERS", 20),
		DaysAhead:   getInt("SIM_DAYS_AHEAD", 7),
		PostgresDSN: base.PostgresDSN,
		AuthSecret:  base.AuthSecret,
		TokenTTL:    base.TokenTTL,
	}, base
}

func validateConfig(cfg SimConfig) error {
	if cfg.Contenders < 2 {
		return errors.New("SIM_CONTENDERS must be at least 2")
	}
	if cfg.Rounds <= 0 {
		return errors.New("SIM_ROUNDS must be > 0")
	}
	if cfg.DaysAhead < 1 {
		return errors.New("SIM_DAYS_AHEAD must be >= 1")
	}
	return nil
}

// loadFixtures picks a doctor with at least one active weekday and enough
// distinct patients to contend for its slots.
func loadFixtures(ctx context.Context, pool *pgxpool.Pool, contenders int) (target, []uuid.UUID, error) {
	var tgt target
	var weekday int
	err := pool.QueryRow(ctx, `
		SELECT d.id, d.specialty, wa.weekday
		FROM doctors d
		JOIN weekly_availability wa ON wa.doctor_id = d.id
		WHERE wa.is_active AND wa.end_minute > wa.start_minute
		ORDER BY d.created_at, wa.weekday
		LIMIT 1
	`).Scan(&tgt.DoctorID, &tgt.Specialty, &weekday)
	if err != nil {
		return target{}, nil, fmt.Errorf("load doctor: %w", err)
	}
	if tgt.Weekday, err = timewindow.ParseWeekday(weekday); err != nil {
		return target{}, nil, err
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients ORDER BY created_at LIMIT $1`, contenders)
	if err != nil {
		return target{}, nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	var patients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return target{}, nil, err
		}
		patients = append(patients, id)
	}
	if err := rows.Err(); err != nil {
		return target{}, nil, err
	}
	if len(patients) < 2 {
		return target{}, nil, errors.New("need at least two patients, run cmd/seed first")
	}
	return tgt, patients, nil
}

// nextDate is the first date at least daysAhead out that falls on weekday.
func nextDate(from time.Time, weekday timewindow.Weekday, daysAhead int) time.Time {
	d := timewindow.DateOf(from).AddDate(0, 0, daysAhead)
	for timewindow.WeekdayOf(d) != weekday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func (s *Simulator) Run(ctx context.Context) {
	date := nextDate(time.Now(), s.target.Weekday, s.config.DaysAhead)
	for round := 0; round < s.config.Rounds; round++ {
		slotID, err := s.firstOpenSlot(ctx, date)
		if err != nil {
			s.logger.Error().Err(err).Int("round", round).Msg("no open slot, moving a week ahead")
			date = date.AddDate(0, 0, 7)
			continue
		}
		s.rounds = append(s.rounds, s.race(ctx, date, slotID))
	}
	s.logger.Info().Msg("simulation complete")
}

// race fires one confirmation per patient for the same slot at once.
func (s *Simulator) race(ctx context.Context, date time.Time, slotID string) roundResult {
	res := roundResult{Date: date.Format(timewindow.DateLayout), SlotID: slotID}
	var winners, losers, failed int64

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, patientID := range s.patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			switch s.book(ctx, patientID, res.Date, slotID) {
			case http.StatusCreated:
				atomic.AddInt64(&winners, 1)
			case http.StatusConflict:
				atomic.AddInt64(&losers, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}(patientID)
	}
	close(start)
	wg.Wait()

	res.Winners, res.Losers, res.Errors = int(winners), int(losers), int(failed)
	s.logger.Info().
		Str("date", res.Date).
		Str("slot_id", slotID).
		Int("winners", res.Winners).
		Int("conflicts", res.Losers).
		Int("errors", res.Errors).
		Msg("round finished")
	return res
}

func (s *Simulator) book(ctx context.Context, patientID uuid.UUID, date, slotID string) int {
	body, _ := json.Marshal(map[string]string{
		"specialty": s.target.Specialty,
		"doctor_id": s.target.DoctorID.String(),
		"date":      date,
		"slot_id":   slotID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.authorize(req, identity.Subject{ID: patientID, Role: identity.RolePatient}); err != nil {
		return 0
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.confirm.Record(latency, false, false)
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.confirm.Record(latency, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict)
	return resp.StatusCode
}

func (s *Simulator) firstOpenSlot(ctx context.Context, date time.Time) (string, error) {
	url := fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.config.APIBaseURL, s.target.DoctorID, date.Format(timewindow.DateLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if err := s.authorize(req, identity.Subject{ID: s.patients[0], Role: identity.RolePatient}); err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("slots returned %d", resp.StatusCode)
	}

	var out struct {
		Sections []struct {
			Chips []struct {
				SlotID     string `json:"slot_id"`
				Selectable bool   `json:"selectable"`
			} `json:"chips"`
		} `json:"sections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode slots: %w", err)
	}
	for _, section := range out.Sections {
		for _, chip := range section.Chips {
			if chip.Selectable {
				return chip.SlotID, nil
			}
		}
	}
	return "", fmt.Errorf("no open slot on %s", date.Format(timewindow.DateLayout))
}

func (s *Simulator) authorize(req *http.Request, subject identity.Subject) error {
	raw, err := s.tokens.Issue(subject)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+raw)
	return nil
}

// PrintReport reports false if any round did not have exactly one winner.
func (s *Simulator) PrintReport() bool {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Doctor: %s (%s)\n", s.target.DoctorID, s.target.Specialty)
	fmt.Printf("Contenders per slot: %d\n", len(s.patients))
	fmt.Println()

	ok := len(s.rounds) > 0
	for _, r := range s.rounds {
		verdict := "OK"
		if r.Winners != 1 {
			verdict = "FAIL"
			ok = false
		}
		fmt.Printf("  %s %s  winners=%d conflicts=%d errors=%d  %s\n",
			r.Date, r.SlotID, r.Winners, r.Losers, r.Errors, verdict)
	}
	fmt.Println()

	printOperationReport("Confirm", &s.confirm)
	return ok
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
