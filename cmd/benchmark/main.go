package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	imageKB     int
)

// Metrics
var (
	totalRequests uint64
	created201    uint64
	rejected400   uint64
	throttled429  uint64
	failOther     uint64
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.IntVar(&imageKB, "image-kb", 64, "Size of each generated image in KiB")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s | Image: %dKiB", concurrency, duration, imageKB)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, i)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, id int) {
	defer wg.Done()
	client := &http.Client{Timeout: 15 * time.Second}

	n := 0
	for time.Since(start) < duration {
		n++
		body, contentType := intakeForm(fmt.Sprintf("bench-%d-%d@example.com", id, n))

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/requests", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&created201, 1)
		case 400:
			atomic.AddUint64(&rejected400, 1)
		case 429:
			atomic.AddUint64(&throttled429, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// intakeForm builds a multipart submission with two synthetic PNG payloads.
func intakeForm(email string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	w.WriteField("email", email)
	w.WriteField("description", "benchmark submission")

	for field, name := range map[string]string{"image": "photo.png", "payment_proof": "proof.png"} {
		fw, _ := w.CreateFormFile(field, name)
		fw.Write(syntheticPNG())
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func syntheticPNG() []byte {
	data := make([]byte, imageKB*1024)
	copy(data, pngHeader)
	rand.Read(data[len(pngHeader):])
	return data
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	c201 := atomic.LoadUint64(&created201)
	r400 := atomic.LoadUint64(&rejected400)
	t429 := atomic.LoadUint64(&throttled429)
	fErr := atomic.LoadUint64(&failOther)

	rps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_rps":  rps,
		"success_created": c201,
		"rejected":        r400,
		"throttled":       t429,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	file, _ := os.Create("results_intake.json")
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
