package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadClaimsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.csv")
	doc := strings.Join([]string{
		"Customer_ID,claim_type,description,incident_date,reported_amount,is_fraud",
		"C1,Theft,Bike stolen,2024-03-01,400,1",
		"C2,Damage,Screen cracked,2024-03-02,120.50,0",
		"C3,Damage,Bad date,03/02/2024,100,0",
		"C4,Loss,Bad amount,2024-03-02,lots,0",
	}, "\n")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Run("SkipsMalformedRows", func(t *testing.T) {
		claims, err := readClaimsCSV(path, 0)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(claims) != 2 {
			t.Fatalf("expected 2 claims, got %d", len(claims))
		}
		if !claims[0].IsFraud || claims[1].IsFraud {
			t.Error("fraud labels not parsed")
		}
		if claims[1].ReportedAmount != 120.50 {
			t.Errorf("expected 120.50, got %v", claims[1].ReportedAmount)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		claims, err := readClaimsCSV(path, 1)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(claims) != 1 {
			t.Fatalf("expected 1 claim, got %d", len(claims))
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.csv")
		if err := os.WriteFile(bad, []byte("customer_id,claim_type\nC1,Theft\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := readClaimsCSV(bad, 0); err == nil {
			t.Fatal("expected error for missing columns")
		}
	})
}

func TestRunBenchmark(t *testing.T) {
	var policies atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Tenant-ID") != "bench" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case r.URL.Path == "/policies":
			policies.Add(1)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "pol"})
		case r.URL.Path == "/claims":
			var req claimRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			level := "Low"
			if req.ReportedAmount > 1000 {
				level = "High"
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(claimResponse{ID: req.CustomerID, ClaimNumber: "CLM-1", RiskLevel: level})
		case strings.HasSuffix(r.URL.Path, "/alerts"):
			alerts := []alertResponse{}
			if strings.Contains(r.URL.Path, "C3") {
				alerts = append(alerts, alertResponse{AlertType: "Multiple Claims", RiskScore: 55})
			}
			_ = json.NewEncoder(w).Encode(alerts)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &client{
		http:     srv.Client(),
		baseURL:  srv.URL,
		tenantID: "bench",
		insurer:  "ins",
		coverage: "Empresarial",
		amount:   50000,
		policies: make(map[string]string),
	}
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	claims := []LabeledClaim{
		{CustomerID: "C1", ClaimType: "Theft", IncidentDate: day, ReportedAmount: 5000, IsFraud: true},
		{CustomerID: "C2", ClaimType: "Damage", IncidentDate: day, ReportedAmount: 100, IsFraud: false},
		{CustomerID: "C3", ClaimType: "Loss", IncidentDate: day, ReportedAmount: 200, IsFraud: false},
		{CustomerID: "C1", ClaimType: "Loss", IncidentDate: day, ReportedAmount: 100, IsFraud: true},
	}

	m := runBenchmark(c, claims, 3, false)

	if m.TotalProcessed != 4 || m.TotalErrors != 0 {
		t.Fatalf("expected 4 processed without errors, got %d/%d", m.TotalProcessed, m.TotalErrors)
	}
	if m.TruePositives != 1 || m.FalseNegatives != 1 || m.FalsePositives != 1 || m.TrueNegatives != 1 {
		t.Errorf("unexpected confusion matrix: %+v", m)
	}
	if got := policies.Load(); got != 3 {
		t.Errorf("expected one policy per customer, got %d", got)
	}
}

func TestRatio(t *testing.T) {
	if ratio(1, 0) != 0 {
		t.Error("expected zero for empty denominator")
	}
	if ratio(1, 4) != 0.25 {
		t.Error("expected 0.25")
	}
}
