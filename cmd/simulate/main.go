package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caffeinepub/booking-engine/internal/config"
	"github.com/caffeinepub/booking-engine/internal/db"
)

// The simulator hammers the public booking surface with concurrent workers
// so double-booking protection can be observed under real contention:
// conflicts are expected, overlapping committed appointments are not.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	SlotsRatio    float64
	ProfileRatio  float64
	BusinessLimit int
	PostgresDSN   string
}

type businessRef struct {
	ID         string
	ServiceIDs []string
}

type DataPool struct {
	Businesses []businessRef
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Slots   OperationMetrics
	Profile OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()
	if err := validateSimConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f slots=%.2f profile=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.SlotsRatio, cfg.ProfileRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d businesses", len(dataPool.Businesses))

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		SlotsRatio:    getFloat("SIM_SLOTS_RATIO", 0.3),
		ProfileRatio:  getFloat("SIM_PROFILE_RATIO", 0.2),
		BusinessLimit: getInt("SIM_BUSINESS_LIMIT", 20),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.SlotsRatio + cfg.ProfileRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.SlotsRatio /= total
		cfg.ProfileRatio /= total
	}

	return cfg
}

func validateSimConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM businesses LIMIT $1
	`, cfg.BusinessLimit)
	if err != nil {
		return nil, fmt.Errorf("load businesses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Businesses = append(dataPool.Businesses, businessRef{ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range dataPool.Businesses {
		b := &dataPool.Businesses[i]
		svcRows, err := pool.Query(ctx, `
			SELECT id FROM services WHERE business_id = $1
		`, b.ID)
		if err != nil {
			return nil, fmt.Errorf("load services: %w", err)
		}
		for svcRows.Next() {
			var id string
			if err := svcRows.Scan(&id); err != nil {
				svcRows.Close()
				return nil, err
			}
			b.ServiceIDs = append(b.ServiceIDs, id)
		}
		svcRows.Close()
		if err := svcRows.Err(); err != nil {
			return nil, err
		}
	}

	if len(dataPool.Businesses) == 0 {
		return nil, fmt.Errorf("no businesses loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.SlotsRatio:
				s.doSlots(ctx, rng)
			default:
				s.doProfile(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomBusiness(rng *rand.Rand) businessRef {
	return s.pool.Businesses[rng.Intn(len(s.pool.Businesses))]
}

// fetchSlots asks the API for tomorrow's open slots.
func (s *Simulator) fetchSlots(ctx context.Context, businessID, serviceID string) ([]int64, error) {
	date := time.Now().AddDate(0, 0, 1).UnixNano()
	url := fmt.Sprintf("%s/api/businesses/%s/slots?service_id=%s&date=%d",
		s.config.APIBaseURL, businessID, serviceID, date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slots request returned %d", resp.StatusCode)
	}

	var out struct {
		Slots []int64 `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	b := s.randomBusiness(rng)
	if len(b.ServiceIDs) == 0 {
		return
	}
	serviceID := b.ServiceIDs[rng.Intn(len(b.ServiceIDs))]

	slots, err := s.fetchSlots(ctx, b.ID, serviceID)
	if err != nil || len(slots) == 0 {
		return
	}
	// Bias toward the first few slots so workers collide on them.
	pick := rng.Intn(len(slots))
	if pick > 3 && rng.Float64() < 0.7 {
		pick = rng.Intn(4)
	}

	email := gofakeit.Email()
	reqBody := map[string]any{
		"service_id": serviceID,
		"start_time": slots[pick],
		"name":       gofakeit.Name(),
		"email":      email,
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/businesses/%s/bookings", s.config.APIBaseURL, b.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusCreated
		conflict = resp.StatusCode == http.StatusConflict
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	b := s.randomBusiness(rng)
	if len(b.ServiceIDs) == 0 {
		return
	}
	serviceID := b.ServiceIDs[rng.Intn(len(b.ServiceIDs))]

	start := time.Now()
	_, err := s.fetchSlots(ctx, b.ID, serviceID)
	s.metrics.Slots.Record(time.Since(start), err == nil, false)
}

func (s *Simulator) doProfile(ctx context.Context, rng *rand.Rand) {
	b := s.randomBusiness(rng)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/businesses/%s/", s.config.APIBaseURL, b.ID), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.Profile.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("bookPublic", &s.metrics.Booking)
	printOp("getAvailableSlots", &s.metrics.Slots)
	printOp("getBusiness", &s.metrics.Profile)
}

func printOp(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-18s no operations\n", name)
		return
	}
	avg, min, max, p50, p95 := om.Stats()
	fmt.Printf("%-18s total=%d success=%d conflict=%d error=%d\n",
		name, total, atomic.LoadInt64(&om.Success), atomic.LoadInt64(&om.Conflict), atomic.LoadInt64(&om.Error))
	fmt.Printf("%-18s latency avg=%s min=%s max=%s p50=%s p95=%s\n", "", avg, min, max, p50, p95)
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

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
