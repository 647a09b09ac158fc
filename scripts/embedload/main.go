// Embedload is a concurrent load driver for the relay's /embed endpoint. It
// measures throughput and latency percentiles, then dumps the relay's own
// /status and /circuits views so provider distribution and breaker state can
// be checked after a run.
//
// Usage:
//
//	go run ./scripts/embedload -url http://localhost:8080 -concurrency 10 -requests 1000
//
// Pair it with scripts/fakeprovider and its /admin/fail toggle to watch
// failover behavior under load.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "Relay base URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		body        = flag.String("body", `{"texts":["the quick brown fox"]}`, "Request body")
		timeoutSec  = flag.Int("timeout", 30, "Per-request timeout in seconds")
		verbose     = flag.Bool("v", false, "Verbose per-request logging")
	)
	flag.Parse()

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}
	target := *baseURL + "/embed"

	jobs := make(chan int)
	var wg sync.WaitGroup

	var success, failure int32

	statusCodes := make(map[int]int32)
	var statusMu sync.Mutex

	var latencies []time.Duration
	var latMu sync.Mutex

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				start := time.Now()

				resp, err := client.Post(target, "application/json", bytes.NewBufferString(*body))
				dur := time.Since(start)

				latMu.Lock()
				latencies = append(latencies, dur)
				latMu.Unlock()

				if err != nil {
					atomic.AddInt32(&failure, 1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				statusMu.Lock()
				statusCodes[resp.StatusCode]++
				statusMu.Unlock()

				if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
					atomic.AddInt32(&success, 1)
				} else {
					atomic.AddInt32(&failure, 1)
				}

				if *verbose {
					fmt.Printf("[%d] idx=%d status=%d dur=%v\n", workerID, idx, resp.StatusCode, dur)
				}

				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)

	fmt.Println("--- Embed Load Summary ---")
	fmt.Printf("Target: %s\n", target)
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Success: %d  Failure: %d\n", success, failure)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n",
		totalDuration, float64(*requests)/totalDuration.Seconds())

	fmt.Println("\nStatus codes:")
	var codes []int
	for code := range statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, statusCodes[code])
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, d := range latencies {
			sum += d
		}
		pick := func(pct float64) time.Duration {
			return latencies[int(float64(len(latencies)-1)*pct)]
		}
		fmt.Println("\nLatencies:")
		fmt.Printf("  samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
			len(latencies), latencies[0], sum/time.Duration(len(latencies)),
			latencies[len(latencies)-1], pick(0.50), pick(0.90), pick(0.95), pick(0.99))
	}

	dump(client, *baseURL+"/status", "Relay status")
	dump(client, *baseURL+"/circuits", "Circuit breakers")

	if failure > 0 {
		os.Exit(2)
	}
}

func dump(client *http.Client, url, title string) {
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("\n%s: unavailable (%v)\n", title, err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("\n%s:\n%s\n", title, body)
}
