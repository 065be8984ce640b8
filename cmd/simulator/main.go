// Load generator for testing Merlin with a synthetic transaction stream.
//
// Usage:
//   go run cmd/simulator/main.go -url http://localhost:8080 -count 1000
//
// This tool:
//   1. Generates synthetic transactions with a configurable fraud bias
//   2. Sends each transaction to Merlin for scoring
//   3. Tallies decisions, fallbacks, and latency percentiles
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/simulator"
)

// analyzeRequest mirrors the POST /analyze request body.
type analyzeRequest struct {
	Transaction *domain.Transaction `json:"transaction"`
}

// tally tracks run results.
type tally struct {
	Approved  int64
	Blocked   int64
	Review    int64
	Fallbacks int64
	Errors    int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Merlin base URL")
	count := flag.Int("count", 1000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudBias := flag.Float64("fraud", 0.15, "Fraction of fraud-shaped transactions (0.0-1.0)")
	users := flag.Int("users", 50, "Size of the user id pool")
	seed := flag.Int64("seed", 0, "Random seed (0 = time-based)")
	verbose := flag.Bool("verbose", false, "Print each decision")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           MERLIN SIMULATOR - Synthetic Fraud Stream           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nMerlin URL: %s\n", *baseURL)
	fmt.Printf("Count:      %d\n", *count)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Fraud Bias: %.2f\n", *fraudBias)
	fmt.Printf("User Pool:  %d\n", *users)
	fmt.Printf("Seed:       %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Merlin not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Merlin is running:")
		fmt.Println("  go run cmd/merlin/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Merlin is healthy")

	gen := simulator.New(simulator.Config{
		FraudBias: *fraudBias,
		UserPool:  *users,
		Now:       func() int64 { return time.Now().UnixMilli() },
	}, rand.NewSource(*seed))

	fmt.Printf("\nSending %d transactions with %d workers...\n\n", *count, *workers)
	start := time.Now()

	var results tally
	var latMu sync.Mutex
	latencies := make([]float64, 0, *count)

	jobs := make(chan *domain.Transaction, *workers)
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 10 * time.Second}

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tx := range jobs {
				sent := time.Now()
				analysis, err := sendTransaction(client, *baseURL, tx)
				if err != nil {
					atomic.AddInt64(&results.Errors, 1)
					continue
				}

				latMu.Lock()
				latencies = append(latencies, float64(time.Since(sent).Microseconds())/1000)
				latMu.Unlock()

				switch analysis.Decision {
				case domain.DecisionApprove:
					atomic.AddInt64(&results.Approved, 1)
				case domain.DecisionBlock:
					atomic.AddInt64(&results.Blocked, 1)
				case domain.DecisionManualReview:
					atomic.AddInt64(&results.Review, 1)
				}
				if analysis.IsFallback {
					atomic.AddInt64(&results.Fallbacks, 1)
				}

				if *verbose {
					fmt.Printf("  %s  score=%3d  %s\n", tx.ID, analysis.Score, analysis.Decision)
				}
			}
		}()
	}

	for i := 0; i < *count; i++ {
		jobs <- gen.Next()
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(start)
	printResults(&results, latencies, *count, duration)
}

func sendTransaction(client *http.Client, baseURL string, tx *domain.Transaction) (*domain.RiskAnalysis, error) {
	body, err := json.Marshal(analyzeRequest{Transaction: tx})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var analysis domain.RiskAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func checkHealth(baseURL string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

func printResults(results *tally, latencies []float64, count int, duration time.Duration) {
	processed := results.Approved + results.Blocked + results.Review

	fmt.Println("\n═══════════════════════ RESULTS ═══════════════════════")
	fmt.Printf("  Processed:   %d / %d (errors: %d)\n", processed, count, results.Errors)
	fmt.Printf("  Duration:    %s (%.1f tx/s)\n", duration.Round(time.Millisecond), float64(processed)/duration.Seconds())
	fmt.Println()
	fmt.Printf("  APPROVE:       %6d (%.1f%%)\n", results.Approved, pct(results.Approved, processed))
	fmt.Printf("  BLOCK:         %6d (%.1f%%)\n", results.Blocked, pct(results.Blocked, processed))
	fmt.Printf("  MANUAL_REVIEW: %6d (%.1f%%)\n", results.Review, pct(results.Review, processed))
	fmt.Printf("  Fallbacks:     %6d\n", results.Fallbacks)

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		var sum float64
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Printf("  Latency avg: %.2fms  p50: %.2fms  p99: %.2fms\n",
			sum/float64(len(latencies)),
			latencies[len(latencies)/2],
			latencies[(len(latencies)*99)/100],
		)
	}
	fmt.Println("═══════════════════════════════════════════════════════")
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
