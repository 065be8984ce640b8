package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/metrics"
	"github.com/opensource-finance/merlin/internal/repository"
	"github.com/opensource-finance/merlin/internal/review"
	"github.com/opensource-finance/merlin/internal/rules"
	"github.com/opensource-finance/merlin/internal/strategy"
)

// analysisCacheTTL bounds how long analyses are served from cache.
const analysisCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	engine     *engine.Engine
	strategies *strategy.Provider
	reviews    *review.Queue
	aggregator *metrics.Aggregator
	ext        *rules.Engine
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, strategies *strategy.Provider, reviews *review.Queue, aggregator *metrics.Aggregator, ext *rules.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		engine:     eng,
		strategies: strategies,
		reviews:    reviews,
		aggregator: aggregator,
		ext:        ext,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		version:    version,
	}
}

// AnalyzeRequest is the request body for POST /analyze. The strategy is
// optional; when omitted the currently rotated strategy is applied.
type AnalyzeRequest struct {
	Transaction domain.Transaction `json:"transaction"`
	Strategy    *domain.Strategy   `json:"strategy,omitempty"`
}

// Analyze handles POST /analyze requests.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx := req.Transaction
	tx.Normalize(func() string { return uuid.New().String() })
	if err := tx.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	strat := h.strategies.Next()
	if req.Strategy != nil {
		strat = *req.Strategy
	}

	analysis, err := h.engine.Analyze(ctx, &tx, strat)
	if err != nil {
		slog.Error("analysis failed", "transaction_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	// Persist the trail. Failures are logged, never surfaced: the
	// analysis itself is already complete.
	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, &tx); err != nil {
			slog.Error("failed to save transaction", "error", err)
		}
		if err := h.repo.SaveAnalysis(ctx, analysis); err != nil {
			slog.Error("failed to save analysis", "error", err)
		}
	}
	if h.cache != nil {
		if data, err := json.Marshal(analysis); err == nil {
			_ = h.cache.Set(ctx, "analysis:"+analysis.ID, data, analysisCacheTTL)
		}
	}

	h.aggregator.Record(analysis)

	if analysis.Decision == domain.DecisionManualReview {
		h.reviews.Add(&tx, analysis)
	}

	h.publish(analysis)

	writeJSON(w, http.StatusOK, analysis)
}

// publish emits decision events for downstream consumers.
func (h *Handler) publish(analysis *domain.RiskAnalysis) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return
	}

	ctx := context.Background()
	_ = h.bus.Publish(ctx, domain.TopicTransactionAnalyzed, payload)
	switch analysis.Decision {
	case domain.DecisionBlock:
		_ = h.bus.Publish(ctx, domain.TopicAnalysisBlocked, payload)
	case domain.DecisionManualReview:
		_ = h.bus.Publish(ctx, domain.TopicAnalysisReview, payload)
	}
}

// GetAnalysis retrieves an analysis by ID, cache first.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, "analysis:"+analysisID); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	analysis, err := h.repo.GetAnalysis(ctx, analysisID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			slog.Error("failed to get analysis", "id", analysisID, "error", err)
		}
		writeJSON(w, status, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, txID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			slog.Error("failed to get transaction", "id", txID, "error", err)
		}
		writeJSON(w, status, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListReviews returns the pending review queue.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": h.reviews.Len(),
		"items":   h.reviews.List(),
	})
}

// ResolveReviewRequest is the request body for POST /review/{id}/resolve.
type ResolveReviewRequest struct {
	Verdict review.Verdict `json:"verdict"`
}

// ResolveReview removes a transaction from the review queue.
func (h *Handler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	var req ResolveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Verdict != review.VerdictApprove && req.Verdict != review.VerdictBlock {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "verdict must be APPROVE or BLOCK",
		})
		return
	}

	item, err := h.reviews.Resolve(txID, req.Verdict)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("review resolved",
		"transaction_id", txID,
		"verdict", req.Verdict,
		"score", item.Analysis.Score,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"transactionId": txID,
		"verdict":       req.Verdict,
	})
}

// ListStrategies returns the strategy catalog.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.strategies.List())
}

// CurrentStrategy returns the active strategy.
func (h *Handler) CurrentStrategy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.strategies.Current())
}

// Metrics returns the current system metrics snapshot.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.aggregator.Snapshot())
}

// ListRules returns the loaded extension rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.ext == nil {
		writeJSON(w, http.StatusOK, []*domain.RuleConfig{})
		return
	}
	configs := h.ext.GetLoadedRules()
	if configs == nil {
		configs = []*domain.RuleConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

// CreateRule validates, persists, and loads an extension rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.ext == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "extension rules not enabled",
		})
		return
	}

	var cfg domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if cfg.ID == "" || cfg.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and expression are required",
		})
		return
	}

	if err := h.ext.ValidateRule(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(r.Context(), &cfg); err != nil {
			slog.Error("failed to save rule config", "rule_id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if cfg.Enabled {
		if err := h.ext.LoadRule(&cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, &cfg)
}

// ReloadRules re-reads extension rules from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.ext == nil || h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "extension rules not enabled",
		})
		return
	}

	configs, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rule configs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules",
		})
		return
	}

	if err := h.ext.ReloadRules(configs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loaded": h.ext.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
