// Benchmark tool for replaying labeled claims against ClaimGuard.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/claims.csv -url http://localhost:8080
//
// The CSV header must contain customer_id, claim_type, description,
// incident_date (YYYY-MM-DD), reported_amount and is_fraud (0/1).
// Run the server with CLAIMGUARD_SERVER_RATE_LIMIT=0 for large files.
//
// This tool:
//  1. Registers an insurer and one policy per customer
//  2. Files every claim in file order, keeping each customer's claims sequential
//  3. Treats a claim as flagged when its risk level is High or Very High,
//     or when it raised at least one fraud alert
//  4. Calculates precision, recall, F1-score and the confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClaim is one row of the benchmark dataset.
type LabeledClaim struct {
	CustomerID     string
	ClaimType      string
	Description    string
	IncidentDate   time.Time
	ReportedAmount float64
	IsFraud        bool
}

type policyRequest struct {
	CustomerID     string    `json:"customerId"`
	InsurerID      string    `json:"insuranceCompany"`
	CoverageType   string    `json:"coverageType"`
	CoverageAmount float64   `json:"coverageAmount"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
}

type claimRequest struct {
	PolicyID       string    `json:"policyId"`
	CustomerID     string    `json:"customerId"`
	ClaimType      string    `json:"claimType"`
	Description    string    `json:"description"`
	IncidentDate   time.Time `json:"incidentDate"`
	ReportedAmount float64   `json:"reportedAmount"`
	Actor          string    `json:"actor"`
}

type claimResponse struct {
	ID          string  `json:"id"`
	ClaimNumber string  `json:"claimNumber"`
	FraudScore  float64 `json:"fraudScore"`
	RiskLevel   string  `json:"riskLevel"`
}

type alertResponse struct {
	AlertType string  `json:"alertType"`
	RiskScore float64 `json:"riskScore"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged
	FalsePositives int64 // Legitimate claim flagged
	TrueNegatives  int64 // Legitimate claim not flagged
	FalseNegatives int64 // Fraud not flagged

	TotalProcessed int64
	TotalFraud     int64
	TotalLegit     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// client files claims against one tenant and remembers each customer's policy.
type client struct {
	http     *http.Client
	baseURL  string
	tenantID string
	insurer  string
	coverage string
	amount   float64

	mu       sync.Mutex
	policies map[string]string
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled claims CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "ClaimGuard base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	coverageType := flag.String("coverage", "Empresarial", "Coverage tier for generated policies")
	coverageAmount := flag.Float64("coverage-amount", 50000, "Coverage amount for generated policies")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("CLAIMGUARD BENCHMARK - Labeled claim replay")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	c := &client{
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(*baseURL, "/"),
		tenantID: *tenantID,
		coverage: *coverageType,
		amount:   *coverageAmount,
		policies: make(map[string]string),
	}

	if err := c.checkHealth(); err != nil {
		fmt.Printf("ERROR: ClaimGuard not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure ClaimGuard is running:")
		fmt.Println("  go run ./cmd/claimguard serve")
		os.Exit(1)
	}
	fmt.Println("OK  ClaimGuard is healthy")

	if err := c.registerInsurer(); err != nil {
		fmt.Printf("ERROR: failed to register insurer: %v\n", err)
		os.Exit(1)
	}

	claims, err := readClaimsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(claims) == 0 {
		fmt.Println("ERROR: no claims in CSV")
		os.Exit(1)
	}
	fmt.Printf("OK  Loaded %d claims\n", len(claims))

	fraudCount := 0
	for _, cl := range claims {
		if cl.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:      %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(claims)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(claims)-fraudCount, 100*float64(len(claims)-fraudCount)/float64(len(claims)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(c, claims, *workers, *verbose)
	printResults(metrics, time.Since(startTime))
}

func readClaimsCSV(path string, limit int) ([]LabeledClaim, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"customer_id", "claim_type", "description", "incident_date", "reported_amount", "is_fraud"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var claims []LabeledClaim
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		incident, err := time.Parse("2006-01-02", record[colIndex["incident_date"]])
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(record[colIndex["reported_amount"]], 64)
		if err != nil {
			continue
		}

		claims = append(claims, LabeledClaim{
			CustomerID:     record[colIndex["customer_id"]],
			ClaimType:      record[colIndex["claim_type"]],
			Description:    record[colIndex["description"]],
			IncidentDate:   incident,
			ReportedAmount: amount,
			IsFraud:        record[colIndex["is_fraud"]] == "1",
		})

		if limit > 0 && len(claims) >= limit {
			break
		}
	}
	return claims, nil
}

// runBenchmark shards claims by customer so each customer's history builds up in order.
func runBenchmark(c *client, claims []LabeledClaim, numWorkers int, verbose bool) *Metrics {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	metrics := &Metrics{}

	shards := make([]chan LabeledClaim, numWorkers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan LabeledClaim, 100)
		wg.Add(1)
		go func(work <-chan LabeledClaim) {
			defer wg.Done()
			for cl := range work {
				start := time.Now()
				result, flagged, err := c.fileClaim(cl)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", cl.CustomerID, err)
					}
					continue
				}

				if cl.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLegit, 1)
				}

				switch {
				case flagged && cl.IsFraud:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case flagged && !cl.IsFraud:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !flagged && !cl.IsFraud:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok "
					if flagged != cl.IsFraud {
						status = "MISS"
					}
					fmt.Printf("%s %-14s | %-12s | Amount: %10.2f | Fraud: %-5v | Risk: %-9s (%.1f)\n",
						status, result.ClaimNumber, cl.ClaimType, cl.ReportedAmount, cl.IsFraud, result.RiskLevel, result.FraudScore)
				}
			}
		}(shards[i])
	}

	for _, cl := range claims {
		shards[shardFor(cl.CustomerID, numWorkers)] <- cl
	}
	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()

	return metrics
}

func shardFor(customerID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	return int(h.Sum32() % uint32(n))
}

func (c *client) checkHealth() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) registerInsurer() error {
	var insurer struct {
		ID string `json:"id"`
	}
	body := map[string]any{"name": "Benchmark Mutual", "active": true}
	if err := c.post("/insurers", body, http.StatusCreated, &insurer); err != nil {
		return err
	}
	c.insurer = insurer.ID
	return nil
}

// policyFor returns the customer's policy, creating it on first use.
// Calls for one customer always come from the same worker.
func (c *client) policyFor(customerID string) (string, error) {
	c.mu.Lock()
	id, ok := c.policies[customerID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	now := time.Now().UTC()
	req := policyRequest{
		CustomerID:     customerID,
		InsurerID:      c.insurer,
		CoverageType:   c.coverage,
		CoverageAmount: c.amount,
		StartDate:      now.AddDate(-3, 0, 0),
		EndDate:        now.AddDate(1, 0, 0),
	}
	var p struct {
		ID string `json:"id"`
	}
	if err := c.post("/policies", req, http.StatusCreated, &p); err != nil {
		return "", fmt.Errorf("create policy: %w", err)
	}

	c.mu.Lock()
	c.policies[customerID] = p.ID
	c.mu.Unlock()
	return p.ID, nil
}

func (c *client) fileClaim(cl LabeledClaim) (*claimResponse, bool, error) {
	policyID, err := c.policyFor(cl.CustomerID)
	if err != nil {
		return nil, false, err
	}

	var claim claimResponse
	req := claimRequest{
		PolicyID:       policyID,
		CustomerID:     cl.CustomerID,
		ClaimType:      cl.ClaimType,
		Description:    cl.Description,
		IncidentDate:   cl.IncidentDate,
		ReportedAmount: cl.ReportedAmount,
		Actor:          "benchmark",
	}
	if err := c.post("/claims", req, http.StatusCreated, &claim); err != nil {
		return nil, false, err
	}

	if claim.RiskLevel == "High" || claim.RiskLevel == "Very High" {
		return &claim, true, nil
	}

	var alerts []alertResponse
	if err := c.get("/claims/"+claim.ID+"/alerts", &alerts); err != nil {
		return nil, false, err
	}
	return &claim, len(alerts) > 0, nil
}

func (c *client) post(path string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, want, out)
}

func (c *client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, out)
}

func (c *client) do(req *http.Request, want int, out any) error {
	req.Header.Set("X-Tenant-ID", c.tenantID)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Legitimate: %d\n", m.TotalLegit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                     Predicted")
	fmt.Println("                  FLAG       CLEAR")
	fmt.Printf("   Actual  F   %8d   %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           L   %8d   %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives, m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	if m.TotalFraud > 0 {
		fmt.Printf("\n   Fraud Flagged:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, 100*ratio(m.TruePositives, m.TotalFraud))
		fmt.Printf("   Fraud Missed:   %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, 100*ratio(m.FalseNegatives, m.TotalFraud))
	}
	if m.TotalLegit > 0 {
		fmt.Printf("   False Alarms:   %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLegit, 100*ratio(m.FalsePositives, m.TotalLegit))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f claims/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
