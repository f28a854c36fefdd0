package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/creditgate/internal/logging"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
)

// Metrics
var (
	totalRequests uint64
	delivered200  uint64
	denied403     uint64 // Insufficient credits
	failed500     uint64 // Provider failures (refunded)
	conflict409   uint64 // Ledger contention that exhausted its retries
	failOther     uint64
)

var logger = logging.New("production", "info")

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "hotspot", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 1000, "Number of seeded accounts (see ledgerctl seed)")
}

func main() {
	flag.Parse()
	logger.Info().
		Str("workload", workload).
		Int("workers", concurrency).
		Dur("duration", duration).
		Msg("starting benchmark")

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 90 * time.Second}

	for time.Since(start) < duration {
		payload := map[string]string{
			"email": pickAccount(),
			"theme": "benchmark",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/generations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		atomic.AddUint64(counterFor(resp.StatusCode), 1)
		resp.Body.Close()
	}
}

// counterFor maps a response status to the counter it increments.
func counterFor(status int) *uint64 {
	switch status {
	case http.StatusOK:
		return &delivered200
	case http.StatusForbidden:
		return &denied403
	case http.StatusInternalServerError:
		return &failed500
	case http.StatusConflict:
		return &conflict409
	default:
		return &failOther
	}
}

// pickAccount mirrors the addresses created by `ledgerctl seed`.
func pickAccount() string {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		// Hotspot: 90% of traffic drains the first account
		return seedEmail(0)
	}
	return seedEmail(rand.Intn(accounts))
}

func seedEmail(i int) string {
	return fmt.Sprintf("seed-%05d@creditgate.local", i)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&delivered200)
	denied := atomic.LoadUint64(&denied403)
	failed := atomic.LoadUint64(&failed500)
	conflicts := atomic.LoadUint64(&conflict409)
	fErr := atomic.LoadUint64(&failOther)

	results := map[string]interface{}{
		"workload":             workload,
		"duration_sec":         d.Seconds(),
		"total_requests":       total,
		"throughput_rps":       float64(total) / d.Seconds(),
		"delivered":            ok,
		"insufficient_credits": denied,
		"provider_failures":    failed,
		"conflicts":            conflicts,
		"errors":               fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		logger.Error().Err(err).Str("file", filename).Msg("could not save results")
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
