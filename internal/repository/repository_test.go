package repository

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

func testRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "merlin_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTransaction(id, userID string, ts int64) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		Timestamp: ts,
		UserID:    userID,
		Amount:    42.50,
		Currency:  "USD",
		Merchant:  "Steam",
		Location:  domain.Location{Lat: 40.7128, Lng: -74.0060, City: "New York", Country: "USA"},
		Device:    domain.Device{ID: "dev_1", Type: "Mobile", OS: "iOS", IP: "10.0.0.1"},
	}
}

func sampleAnalysis(id, txID string, ts int64) *domain.RiskAnalysis {
	return &domain.RiskAnalysis{
		ID:               id,
		TransactionID:    txID,
		UserID:           "user_1",
		Score:            72,
		Decision:         domain.DecisionManualReview,
		Flags:            []domain.RiskFlag{domain.FlagNewDevice, domain.FlagHighValue},
		RuleOutput:       50,
		MLOutput:         80,
		ProcessingTimeMs: 1.25,
		IsFallback:       false,
		Timestamp:        ts,
		StrategyName:     "Balanced-Ensemble-v1",
		AmbiguitySignal:  "Transaction amount slightly above user's average",
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSaveAndGetTransaction(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	want := sampleTransaction("tx-1", "user_1", 1700000000000)
	if err := repo.SaveTransaction(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetTransaction(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveTransactionRequiresID(t *testing.T) {
	repo := testRepo(t)

	tx := sampleTransaction("", "user_1", 1)
	if err := repo.SaveTransaction(context.Background(), tx); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCountRecentByUser(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	now := time.Now()
	recent := now.Add(-30 * time.Second).UnixMilli()
	old := now.Add(-10 * time.Minute).UnixMilli()

	_ = repo.SaveTransaction(ctx, sampleTransaction("tx-1", "user_1", recent))
	_ = repo.SaveTransaction(ctx, sampleTransaction("tx-2", "user_1", recent))
	_ = repo.SaveTransaction(ctx, sampleTransaction("tx-3", "user_1", old))
	_ = repo.SaveTransaction(ctx, sampleTransaction("tx-4", "user_2", recent))

	count, err := repo.CountRecentByUser(ctx, "user_1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 recent transactions for user_1, got %d", count)
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	want := sampleAnalysis("an-1", "tx-1", 1700000000000)
	if err := repo.SaveAnalysis(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetAnalysis(ctx, "an-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetAnalysis(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentAnalysesNewestFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i, ts := range []int64{100, 300, 200} {
		a := sampleAnalysis([]string{"an-1", "an-2", "an-3"}[i], "tx", ts)
		if err := repo.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	got, err := repo.ListRecentAnalyses(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(got))
	}
	if got[0].ID != "an-2" || got[1].ID != "an-3" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRuleConfigUpsert(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	rule := &domain.RuleConfig{
		ID:         "geo-ru",
		Name:       "Risky Geography",
		Expression: "country == 'RU'",
		Weight:     15,
		Flag:       domain.FlagRiskyGeo,
		Enabled:    true,
	}
	if err := repo.SaveRuleConfig(ctx, rule); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Second save with the same id replaces the row.
	rule.Weight = 30
	rule.Enabled = false
	if err := repo.SaveRuleConfig(ctx, rule); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := repo.GetRuleConfig(ctx, "geo-ru")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Weight != 30 || got.Enabled {
		t.Errorf("upsert did not replace: %+v", got)
	}
	if got.Flag != domain.FlagRiskyGeo {
		t.Errorf("flag lost on round trip: %s", got.Flag)
	}

	configs, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(configs) != 1 {
		t.Errorf("expected a single config after upsert, got %d", len(configs))
	}
}

func TestGetRuleConfigNotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetRuleConfig(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPing(t *testing.T) {
	repo := testRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestRebindPostgres(t *testing.T) {
	r := &SQLRepository{driver: "postgres"}
	got := r.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("rebind: got %q, want %q", got, want)
	}

	r.driver = "sqlite"
	passthrough := "SELECT * FROM t WHERE a = ?"
	if got := r.rebind(passthrough); got != passthrough {
		t.Errorf("sqlite queries must not be rewritten: %q", got)
	}
}
