package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/callbackops/internal/callback"
)

// Config holds the benchmark settings
var (
	targetURL   string
	idsFile     string
	concurrency int
	duration    time.Duration
	workload    string
	duplicates  int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Processed, replayed or intermediate
	notFound404   uint64
	auth401       uint64
	fail500       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&idsFile, "ids", "seed_ids.txt", "Deposit ids written by the seeder")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "storm", "Workload type: storm | unknown | mixed")
	flag.IntVar(&duplicates, "duplicates", 5, "Identical deliveries fired per callback in storm mode")
}

func main() {
	flag.Parse()
	ids, err := loadIDs(idsFile)
	if err != nil && workload != "unknown" {
		log.Fatalf("Unable to load ids: %v", err)
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Ids: %d", workload, concurrency, duration, len(ids))

	var next uint64
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, ids, &next)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, ids []string, next *uint64) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		id, status := pickCallback(ids, next)
		body, _ := json.Marshal(map[string]interface{}{
			"depositId":     id,
			"status":        status,
			"amount":        "500",
			"currency":      "UGX",
			"correspondent": "MTN_MOMO_UGA",
		})

		deliveries := 1
		if workload == "storm" {
			deliveries = duplicates
		}

		// Duplicate deliveries race each other, as gateway retries do.
		var burst sync.WaitGroup
		burst.Add(deliveries)
		for d := 0; d < deliveries; d++ {
			go func() {
				defer burst.Done()
				deliver(client, body)
			}()
		}
		burst.Wait()
	}
}

func pickCallback(ids []string, next *uint64) (string, string) {
	switch {
	case workload == "unknown" || len(ids) == 0:
		return "dep_" + uuid.NewString(), "COMPLETED"
	case workload == "mixed":
		// Mixed: intermediate updates interleaved with terminal outcomes.
		id := ids[rand.Intn(len(ids))]
		statuses := []string{"SUBMITTED", "ACCEPTED", "PROCESSING", "COMPLETED", "FAILED"}
		return id, statuses[rand.Intn(len(statuses))]
	default:
		i := atomic.AddUint64(next, 1) - 1
		return ids[i%uint64(len(ids))], "COMPLETED"
	}
}

func deliver(client *http.Client, body []byte) {
	req, _ := http.NewRequest("POST", targetURL+"/api/pawapay/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(callback.HeaderDigest, callback.Digest(body))
	req.Header.Set(callback.HeaderSignatureTimestamp, strconv.FormatInt(time.Now().Unix(), 10))

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddUint64(&success200, 1)
	case http.StatusNotFound:
		atomic.AddUint64(&notFound404, 1)
	case http.StatusUnauthorized:
		atomic.AddUint64(&auth401, 1)
	case http.StatusInternalServerError:
		atomic.AddUint64(&fail500, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func loadIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, sc.Err()
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	n404 := atomic.LoadUint64(&notFound404)
	a401 := atomic.LoadUint64(&auth401)
	f500 := atomic.LoadUint64(&fail500)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	retryRate := 0.0
	if total > 0 {
		retryRate = float64(f500) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"duplicates":       duplicates,
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_ok":       s200,
		"not_found":        n404,
		"unauthorized":     a401,
		"server_errors":    f500,
		"retry_rate_pct":   retryRate,
		"transport_errors": fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Unable to save %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
