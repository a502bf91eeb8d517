package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-booking-engine/internal/auth"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/db"
	"github.com/hackgods/clinic-booking-engine/internal/logging"
)

var json = jsoniter.ConfigFastest

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
	JWTSecret    string
}

type slot struct {
	ProviderID  string
	SpecialtyID string
	Date        string
	Time        string
}

type booked struct {
	ID        string
	PatientID string
}

type DataPool struct {
	Patients     []string
	Slots        []slot
	tokens       map[string]string
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Codes     sync.Map
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool, code string) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}
	if code != "" {
		n, _ := om.Codes.LoadOrStore(code, new(int64))
		atomic.AddInt64(n.(*int64), 1)
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
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Confirm       OperationMetrics
	Cancel        OperationMetrics
	FreeSlots     OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	var cfg SimConfig
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive concurrent booking traffic against the API and verify slot uniqueness",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "API base URL")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to run")
	f.IntVar(&cfg.Workers, "workers", 20, "concurrent workers")
	f.Float64Var(&cfg.BookingRatio, "booking-ratio", 0.5, "share of booking requests")
	f.Float64Var(&cfg.ConfirmRatio, "confirm-ratio", 0.15, "share of confirm requests")
	f.Float64Var(&cfg.CancelRatio, "cancel-ratio", 0.05, "share of cancel requests")
	f.Float64Var(&cfg.ReadRatio, "read-ratio", 0.3, "share of read requests")
	f.IntVar(&cfg.PatientLimit, "patients", 4000, "max patients to load")
	f.IntVar(&cfg.SlotLimit, "slots", 400, "max template slots to load")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg SimConfig) error {
	base, err := config.Load()
	if err != nil {
		return fmt.Errorf("load base config: %w", err)
	}
	cfg.PostgresDSN = base.PostgresDSN
	cfg.JWTSecret = base.JWTSecret
	if err := validateConfig(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New("simulate", base.Env, base.LogLevel)
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, db.WithApplicationName("simulate"), db.WithMaxConns(4))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(loadCtx, pgPool, cfg)
	if err != nil {
		return fmt.Errorf("load data pool: %w", err)
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run(ctx)
	sim.PrintReport()

	dupes, err := countDoubleBookings(ctx, pgPool)
	if err != nil {
		return fmt.Errorf("verify slot uniqueness: %w", err)
	}
	if dupes > 0 {
		return fmt.Errorf("found %d provider slots with more than one active appointment", dupes)
	}
	logger.Info().Msg("no provider slot holds more than one active appointment")
	return nil
}

func validateConfig(cfg *SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to mint patient tokens")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("--workers must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total <= 0 {
		return fmt.Errorf("at least one ratio must be positive")
	}
	cfg.BookingRatio /= total
	cfg.ConfirmRatio /= total
	cfg.CancelRatio /= total
	cfg.ReadRatio /= total
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{tokens: make(map[string]string)}

	rows, err := pool.Query(ctx, `SELECT id::text FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	// A small slot pool keeps contention high.
	rows, err = pool.Query(ctx, `
		SELECT t.provider_id::text, p.specialty_id::text, t.date::text, s
		FROM availability_templates t
		JOIN providers p ON p.id = t.provider_id
		CROSS JOIN LATERAL unnest(t.slots) AS s
		WHERE t.date > current_date
		ORDER BY t.date, t.provider_id, s
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s slot
		if err := rows.Scan(&s.ProviderID, &s.SpecialtyID, &s.Date, &s.Time); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.Duration + time.Hour))}
	for _, id := range dataPool.Patients {
		token, err := auth.IssueToken(cfg.JWTSecret, id, claims)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		dataPool.tokens[id] = token
	}

	return dataPool, nil
}

func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT provider_id, date, time
			FROM appointments
			WHERE status IN ('scheduled', 'confirmed')
			GROUP BY provider_id, date, time
			HAVING count(*) > 1
		) dupes
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doFreeSlots(ctx, rng)
		default:
			s.doListByPatient(ctx, rng)
		}
	}
}

type result struct {
	status int
	code   string
	body   []byte
}

func (s *Simulator) call(ctx context.Context, method, path, patientID string, payload any) (result, time.Duration, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return result{}, 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return result{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pool.tokens[patientID])

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return result{}, latency, err
	}
	defer resp.Body.Close()

	res := result{status: resp.StatusCode}
	res.body, _ = io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(res.body, &e)
		res.code = e.Error
	}
	return res, latency, nil
}

func (s *Simulator) randomPatient(rng *rand.Rand) string {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.randomPatient(rng)

	res, latency, err := s.call(ctx, http.MethodPost, "/appointments", patientID, map[string]string{
		"provider_id":  sl.ProviderID,
		"specialty_id": sl.SpecialtyID,
		"date":         sl.Date,
		"time":         sl.Time,
	})
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, false, false, "transport")
		}
		return
	}

	if res.status == http.StatusCreated {
		var appt struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(res.body, &appt) == nil && appt.ID != "" {
			s.pool.AddAppointment(booked{ID: appt.ID, PatientID: patientID})
		}
	}
	s.metrics.Booking.Record(latency, res.status == http.StatusCreated, res.status == http.StatusConflict, res.code)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.lifecycle(ctx, &s.metrics.Confirm, b, "confirm")
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.lifecycle(ctx, &s.metrics.Cancel, b, "cancel")
}

func (s *Simulator) lifecycle(ctx context.Context, om *OperationMetrics, b booked, action string) {
	res, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID+"/"+action, b.PatientID, nil)
	if err != nil {
		return
	}
	om.Record(latency, res.status == http.StatusOK, res.status == http.StatusConflict, res.code)
}

func (s *Simulator) doFreeSlots(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	res, latency, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/providers/%s/slots?date=%s", sl.ProviderID, sl.Date), s.randomPatient(rng), nil)
	if err != nil {
		return
	}
	s.metrics.FreeSlots.Record(latency, res.status == http.StatusOK, false, res.code)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	res, latency, err := s.call(ctx, http.MethodGet, "/appointments?limit=20&offset=0", s.randomPatient(rng), nil)
	if err != nil {
		return
	}
	s.metrics.ListByPatient.Record(latency, res.status == http.StatusOK, false, res.code)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Free slots", &s.metrics.FreeSlots)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
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
	om.Codes.Range(func(k, v any) bool {
		fmt.Printf("    %s: %d\n", k, atomic.LoadInt64(v.(*int64)))
		return true
	})
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
