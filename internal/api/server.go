// Package api exposes the HTTP control surface: search, scanner
// controls, watch-query CRUD, and opportunity review.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealscout/internal/aggregator"
	"dealscout/internal/listing"
	"dealscout/internal/metrics"
	"dealscout/internal/pricing"
	"dealscout/internal/scanner"
	"dealscout/internal/storage"
)

// Searcher is the aggregation surface the API exposes.
type Searcher interface {
	Search(ctx context.Context, query string) aggregator.Result
	SearchSecondary(ctx context.Context, query string) map[string][]listing.Listing
}

// ScannerControls drives the background scanner.
type ScannerControls interface {
	Start() bool
	Stop() bool
	IsRunning() bool
	RunCycleNow()
	Stats(ctx context.Context) (storage.ScannerStats, error)
}

// Store is the persistence surface the API exposes.
type Store interface {
	storage.WatchQueryStore
	storage.OpportunityStore
}

// Options wire the server's collaborators.
type Options struct {
	Addr     string
	Searcher Searcher
	Scanner  ScannerControls
	Store    Store
}

// Server hosts the control API.
type Server struct {
	opts   Options
	logger zerolog.Logger
	http   *http.Server
}

// NewServer builds the router and the underlying http.Server.
func NewServer(opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		opts:   opts,
		logger: logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"dealscout"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/search/platforms", s.handleSearchPlatforms)

		r.Route("/scanner", func(r chi.Router) {
			r.Get("/status", s.handleScannerStatus)
			r.Post("/start", s.handleScannerStart)
			r.Post("/stop", s.handleScannerStop)
			r.Post("/scan", s.handleScanNow)
		})

		r.Route("/watches", func(r chi.Router) {
			r.Get("/", s.handleListWatches)
			r.Post("/", s.handleCreateWatch)
			r.Get("/{watchID}", s.handleGetWatch)
			r.Patch("/{watchID}", s.handleUpdateWatch)
			r.Delete("/{watchID}", s.handleDeleteWatch)
		})

		r.Route("/opportunities", func(r chi.Router) {
			r.Get("/", s.handleListOpportunities)
			r.Get("/{oppID}", s.handleGetOpportunity)
			r.Patch("/{oppID}/status", s.handleUpdateOpportunityStatus)
		})
	})

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in the calling goroutine.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.opts.Addr).Msg("api listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, "q is required", http.StatusBadRequest)
		return
	}

	result := s.opts.Searcher.Search(r.Context(), query)
	summary := pricing.Analyze(result.Active, result.Sold, result.TotalActive, result.TotalSold, result.TotalCompleted)
	writeJSON(w, searchResponse{Query: query, Result: result, Analysis: summary})
}

type searchResponse struct {
	Query    string            `json:"query"`
	Result   aggregator.Result `json:"results"`
	Analysis pricing.Summary   `json:"analysis"`
}

func (s *Server) handleSearchPlatforms(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, "q is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.opts.Searcher.SearchSecondary(r.Context(), query))
}

func (s *Server) handleScannerStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.opts.Scanner.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("scanner stats failed")
		writeError(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"running": s.opts.Scanner.IsRunning(),
		"stats":   stats,
	})
}

func (s *Server) handleScannerStart(w http.ResponseWriter, _ *http.Request) {
	started := s.opts.Scanner.Start()
	writeJSON(w, map[string]any{"started": started, "running": true})
}

func (s *Server) handleScannerStop(w http.ResponseWriter, _ *http.Request) {
	stopped := s.opts.Scanner.Stop()
	writeJSON(w, map[string]any{"stopped": stopped, "running": false})
}

func (s *Server) handleScanNow(w http.ResponseWriter, _ *http.Request) {
	s.opts.Scanner.RunCycleNow()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "scan scheduled"})
}

type watchRequest struct {
	Query        string   `json:"query"`
	Category     *string  `json:"category"`
	MaxBuyPrice  *float64 `json:"max_buy_price"`
	MinProfit    *float64 `json:"min_profit"`
	MinDealScore *int     `json:"min_deal_score"`
	Enabled      *bool    `json:"enabled"`
}

func (s *Server) handleCreateWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		writeError(w, "query is required", http.StatusBadRequest)
		return
	}

	wq := storage.WatchQuery{
		Query:        req.Query,
		Category:     req.Category,
		MinProfit:    decimal.NewFromInt(5),
		MinDealScore: 50,
		Enabled:      true,
	}
	if req.MaxBuyPrice != nil {
		maxBuy := decimal.NewFromFloat(*req.MaxBuyPrice)
		wq.MaxBuyPrice = &maxBuy
	}
	if req.MinProfit != nil {
		wq.MinProfit = decimal.NewFromFloat(*req.MinProfit)
	}
	if req.MinDealScore != nil {
		wq.MinDealScore = *req.MinDealScore
	}
	if req.Enabled != nil {
		wq.Enabled = *req.Enabled
	}

	created, err := s.opts.Store.CreateWatchQuery(r.Context(), wq)
	if err != nil {
		s.logger.Error().Err(err).Msg("create watch failed")
		writeError(w, "could not create watch query", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	watches, err := s.opts.Store.ListWatchQueries(r.Context(), enabledOnly)
	if err != nil {
		s.logger.Error().Err(err).Msg("list watches failed")
		writeError(w, "could not list watch queries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, watches)
}

func (s *Server) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	wq, err := s.opts.Store.GetWatchQuery(r.Context(), chi.URLParam(r, "watchID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "watch query not found", http.StatusNotFound)
			return
		}
		writeError(w, "could not load watch query", http.StatusInternalServerError)
		return
	}
	writeJSON(w, wq)
}

func (s *Server) handleUpdateWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	update := storage.WatchQueryUpdate{
		Category:     req.Category,
		MinDealScore: req.MinDealScore,
		Enabled:      req.Enabled,
	}
	if req.Query != "" {
		update.Query = &req.Query
	}
	if req.MaxBuyPrice != nil {
		maxBuy := decimal.NewFromFloat(*req.MaxBuyPrice)
		update.MaxBuyPrice = &maxBuy
	}
	if req.MinProfit != nil {
		minProfit := decimal.NewFromFloat(*req.MinProfit)
		update.MinProfit = &minProfit
	}

	wq, err := s.opts.Store.UpdateWatchQuery(r.Context(), chi.URLParam(r, "watchID"), update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "watch query not found", http.StatusNotFound)
			return
		}
		writeError(w, "could not update watch query", http.StatusInternalServerError)
		return
	}
	writeJSON(w, wq)
}

func (s *Server) handleDeleteWatch(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.DeleteWatchQuery(r.Context(), chi.URLParam(r, "watchID")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "watch query not found", http.StatusNotFound)
			return
		}
		writeError(w, "could not delete watch query", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	filter := storage.OpportunityFilter{
		Status:       r.URL.Query().Get("status"),
		WatchQueryID: r.URL.Query().Get("watch_id"),
	}
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		if minScore, err := strconv.Atoi(raw); err == nil {
			filter.MinScore = minScore
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}

	opps, err := s.opts.Store.ListOpportunities(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list opportunities failed")
		writeError(w, "could not list opportunities", http.StatusInternalServerError)
		return
	}
	writeJSON(w, opps)
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	opp, err := s.opts.Store.GetOpportunity(r.Context(), chi.URLParam(r, "oppID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "opportunity not found", http.StatusNotFound)
			return
		}
		writeError(w, "could not load opportunity", http.StatusInternalServerError)
		return
	}
	writeJSON(w, opp)
}

func (s *Server) handleUpdateOpportunityStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status          string  `json:"status"`
		InventoryItemID *string `json:"inventory_item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case storage.StatusNew, storage.StatusViewed, storage.StatusPurchased, storage.StatusDismissed:
	default:
		writeError(w, "invalid status", http.StatusBadRequest)
		return
	}

	opp, err := s.opts.Store.UpdateOpportunityStatus(r.Context(), chi.URLParam(r, "oppID"), req.Status, req.InventoryItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "opportunity not found", http.StatusNotFound)
			return
		}
		writeError(w, "could not update opportunity", http.StatusInternalServerError)
		return
	}
	writeJSON(w, opp)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

var _ ScannerControls = (*scanner.Scanner)(nil)
