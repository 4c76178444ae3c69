// Command smoketest exercises a running API end to end: it registers a user,
// uploads a generated CSV and downloads both reports.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/autotab/api/internal/frontend"
	"github.com/autotab/api/internal/middleware"
	"github.com/google/uuid"
)

func main() {
	baseURL := flag.String("api", "http://localhost:8080", "API base URL")
	rows := flag.Int("rows", 200, "rows in the generated dataset")
	timeout := flag.Duration("timeout", 15*time.Minute, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// The breaker would trip while the server is still starting.
	client := frontend.NewClient(*baseURL, middleware.NewCircuitBreaker(middleware.BreakerOptions{FailureThreshold: 1000}))

	username := "smoke-" + uuid.NewString()[:8]
	password := uuid.NewString()

	// Retry loop for server startup
	var token string
	var err error
	for i := 0; i < 10; i++ {
		token, err = client.Register(ctx, username, password)
		if err == nil || !errors.Is(err, frontend.ErrUnavailable) {
			break
		}
		log.Printf("Waiting for server... %v", err)
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatalf("Register failed after retries: %v", err)
	}
	log.Printf("Registered %s", username)

	// 1. Before training both reports are missing
	for _, path := range []string{frontend.LatestPredictions, frontend.LatestImportance} {
		_, err := client.Latest(ctx, token, path)
		var apiErr *frontend.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
			log.Fatalf("Expected 404 for %s before training, got %v", path, err)
		}
	}

	// 2. Upload and train
	log.Printf("Uploading %d rows, this trains synchronously...", *rows)
	res, err := client.Upload(ctx, token, "smoke.csv", strings.NewReader(creditCSV(*rows)))
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	log.Printf("%s: %s %s=%.4f", res.Message, res.Model.Algorithm, res.Model.Metric, res.Model.Score)

	// 3. Fetch both reports
	preds := fetchCSV(ctx, client, token, frontend.LatestPredictions)
	want := int(float64(*rows)*0.25 + 0.999)
	if len(preds)-1 != want {
		log.Fatalf("Expected %d prediction rows, got %d", want, len(preds)-1)
	}
	col := -1
	for i, name := range preds[0] {
		if name == "prediction_label" {
			col = i
		}
	}
	if col < 0 {
		log.Fatalf("Expected a prediction_label column, got %v", preds[0])
	}
	for _, r := range preds[1:] {
		if label := r[col]; label != "0" && label != "1" {
			log.Fatalf("Unexpected label %q", label)
		}
	}

	if res.ImportanceAvailable {
		imp := fetchCSV(ctx, client, token, frontend.LatestImportance)
		if len(imp)-1 != 2 {
			log.Fatalf("Expected one importance row per feature, got %d", len(imp)-1)
		}
	} else {
		log.Printf("Importance not available for %s", res.Model.Algorithm)
	}

	log.Println("SUCCESS: registered, trained and downloaded reports")
}

func fetchCSV(ctx context.Context, client *frontend.Client, token, path string) [][]string {
	resp, err := client.Latest(ctx, token, path)
	if err != nil {
		log.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	records, err := csv.NewReader(io.LimitReader(resp.Body, 64<<20)).ReadAll()
	if err != nil {
		log.Fatalf("GET %s returned invalid CSV: %v", path, err)
	}
	if len(records) == 0 {
		log.Fatalf("GET %s returned an empty file", path)
	}
	return records
}

// creditCSV generates age, income, default with a learnable default rule.
func creditCSV(n int) string {
	rng := rand.New(rand.NewSource(1))
	var b strings.Builder
	b.WriteString("age,income,default\n")
	for i := 0; i < n; i++ {
		age := 20 + rng.Intn(50)
		income := 20000 + rng.Intn(80000)
		def := 0
		if income < 40000 || (age < 25 && income < 55000) {
			def = 1
		}
		fmt.Fprintf(&b, "%d,%d,%d\n", age, income, def)
	}
	return b.String()
}
