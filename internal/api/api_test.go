package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/history"
	"github.com/opensource-finance/merlin/internal/metrics"
	"github.com/opensource-finance/merlin/internal/repository"
	"github.com/opensource-finance/merlin/internal/review"
	"github.com/opensource-finance/merlin/internal/rules"
	"github.com/opensource-finance/merlin/internal/strategy"
)

// stubML makes API-level assertions deterministic.
type stubML struct{ score float64 }

func (s stubML) Infer(ctx context.Context, tx *domain.Transaction, h *domain.UserHistory) (float64, error) {
	return s.score, nil
}

// createTestServer wires a full Community-tier stack on test-local state.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "merlin_api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := history.NewMemoryStore()
	ext, _ := rules.NewEngine(5)
	t.Cleanup(func() { ext.Close() })

	eng := engine.New(domain.DefaultEngineConfig(), store,
		engine.WithInferencer(stubML{score: 20}),
		engine.WithExtensionRules(ext),
	)

	strategies, err := strategy.NewProvider(domain.DefaultStrategies(), 100)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	return NewServer(cfg, eng, strategies, review.NewQueue(100), metrics.NewAggregator(), ext,
		repo, cache.NewLRUCache(100), bus.NewChannelBus(100), "test-v1")
}

func analyzeBody(tx domain.Transaction) *bytes.Buffer {
	body, _ := json.Marshal(AnalyzeRequest{Transaction: tx})
	return bytes.NewBuffer(body)
}

func benignTx(userID string) domain.Transaction {
	return domain.Transaction{
		UserID:   userID,
		Amount:   25,
		Currency: "USD",
		Merchant: "Starbucks",
		Location: domain.Location{Lat: 40.7128, Lng: -74.0060, City: "New York", Country: "USA"},
		Device:   domain.Device{ID: "dev_1", Type: "Mobile", OS: "iOS", IP: "10.0.0.1"},
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulAnalysis", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", analyzeBody(benignTx("user_1")))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var analysis domain.RiskAnalysis
		if err := json.NewDecoder(rec.Body).Decode(&analysis); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if analysis.ID == "" || analysis.TransactionID == "" {
			t.Error("server must assign ids")
		}
		if analysis.Score < 0 || analysis.Score > 100 {
			t.Errorf("score out of range: %d", analysis.Score)
		}
		if analysis.StrategyName == "" {
			t.Error("analysis must name its strategy")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("MissingUserID", func(t *testing.T) {
		tx := benignTx("")
		req := httptest.NewRequest(http.MethodPost, "/analyze", analyzeBody(tx))
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		tx := benignTx("user_1")
		tx.Amount = -10
		req := httptest.NewRequest(http.MethodPost, "/analyze", analyzeBody(tx))
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("StrategyOverride", func(t *testing.T) {
		body, _ := json.Marshal(AnalyzeRequest{
			Transaction: benignTx("user_override"),
			Strategy:    &domain.Strategy{Name: "custom", RuleWeight: 1.0, MLWeight: 0},
		})
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBuffer(body))
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var analysis domain.RiskAnalysis
		_ = json.NewDecoder(rec.Body).Decode(&analysis)
		if analysis.StrategyName != "custom" {
			t.Errorf("override ignored, strategy %s", analysis.StrategyName)
		}
	})
}

func TestAnalysisRetrieval(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/analyze", analyzeBody(benignTx("user_1")))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d", rec.Code)
	}

	var analysis domain.RiskAnalysis
	_ = json.NewDecoder(rec.Body).Decode(&analysis)

	t.Run("GetAnalysis", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analyses/"+analysis.ID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var got domain.RiskAnalysis
		_ = json.NewDecoder(rec.Body).Decode(&got)
		if got.ID != analysis.ID || got.Score != analysis.Score {
			t.Errorf("retrieved wrong analysis: %+v", got)
		}
	})

	t.Run("GetTransaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions/"+analysis.TransactionID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var tx domain.Transaction
		_ = json.NewDecoder(rec.Body).Decode(&tx)
		if tx.ID != analysis.TransactionID || tx.UserID != "user_1" {
			t.Errorf("retrieved wrong transaction: %+v", tx)
		}
	})

	t.Run("AnalysisNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analyses/does-not-exist", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestReviewEndpoints(t *testing.T) {
	server := createTestServer(t)

	// Queue one item directly; driving a MANUAL_REVIEW through the engine
	// would couple this test to scoring constants.
	tx := benignTx("user_1")
	tx.ID = "tx-review-1"
	server.Handler().reviews.Add(&tx, &domain.RiskAnalysis{
		ID: "an-1", TransactionID: tx.ID, Score: 70, Decision: domain.DecisionManualReview,
	})

	t.Run("List", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/review", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out struct {
			Pending int            `json:"pending"`
			Items   []*review.Item `json:"items"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&out)
		if out.Pending != 1 || len(out.Items) != 1 {
			t.Errorf("expected 1 pending item, got %+v", out)
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		body, _ := json.Marshal(ResolveReviewRequest{Verdict: review.VerdictApprove})
		req := httptest.NewRequest(http.MethodPost, "/review/tx-review-1/resolve", bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if server.Handler().reviews.Len() != 0 {
			t.Error("resolved item still queued")
		}
	})

	t.Run("ResolveInvalidVerdict", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/review/tx-x/resolve", bytes.NewBufferString(`{"verdict":"MAYBE"}`))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("ResolveUnknown", func(t *testing.T) {
		body, _ := json.Marshal(ResolveReviewRequest{Verdict: review.VerdictBlock})
		req := httptest.NewRequest(http.MethodPost, "/review/missing/resolve", bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestStrategyEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("List", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/strategies", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var strategies []domain.Strategy
		_ = json.NewDecoder(rec.Body).Decode(&strategies)
		if len(strategies) != len(domain.DefaultStrategies()) {
			t.Errorf("expected full catalog, got %d", len(strategies))
		}
	})

	t.Run("Current", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/strategies/current", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var s domain.Strategy
		_ = json.NewDecoder(rec.Body).Decode(&s)
		if s.Name != domain.DefaultStrategies()[0].Name {
			t.Errorf("unexpected current strategy: %s", s.Name)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server := createTestServer(t)

	for i := 0; i < 3; i++ {
		tx := benignTx(fmt.Sprintf("user_%d", i))
		req := httptest.NewRequest(http.MethodPost, "/analyze", analyzeBody(tx))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("analyze %d failed: %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap metrics.Snapshot
	_ = json.NewDecoder(rec.Body).Decode(&snap)
	if snap.TotalProcessed != 3 {
		t.Errorf("expected 3 processed, got %d", snap.TotalProcessed)
	}
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		body, _ := json.Marshal(domain.RuleConfig{
			ID:         "geo-ru",
			Name:       "Risky Geography",
			Expression: "country == 'RU' && amount > 100.0",
			Weight:     15,
			Flag:       domain.FlagRiskyGeo,
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		body, _ := json.Marshal(domain.RuleConfig{
			ID:         "broken",
			Expression: "!!! not cel",
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var configs []*domain.RuleConfig
		_ = json.NewDecoder(rec.Body).Decode(&configs)
		if len(configs) != 1 || configs[0].ID != "geo-ru" {
			t.Errorf("expected loaded geo-ru rule, got %+v", configs)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules/reload", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var out map[string]int
		_ = json.NewDecoder(rec.Body).Decode(&out)
		if out["loaded"] != 1 {
			t.Errorf("expected 1 rule after reload, got %d", out["loaded"])
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	var out map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if out["status"] != "healthy" || out["version"] != "test-v1" {
		t.Errorf("unexpected health payload: %v", out)
	}
}
