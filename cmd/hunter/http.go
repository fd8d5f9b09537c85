package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	app_service "smurfing-hunter/internal/application/service"
	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/infrastructure/config"
	"smurfing-hunter/internal/infrastructure/database"
	"smurfing-hunter/internal/infrastructure/logger"
	"smurfing-hunter/internal/infrastructure/messaging"
	"smurfing-hunter/internal/infrastructure/metrics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// dependencyCheck reports whether a backing service is reachable
type dependencyCheck struct {
	name  string
	check func(ctx context.Context) bool
}

// startHTTPServers starts the health/query server and, when enabled, the metrics server
func startHTTPServers(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	analysisService *app_service.AnalysisApplicationService,
	analysisMetrics *metrics.AnalysisMetrics,
	neo4jClient *database.Neo4JClient,
	publisher *messaging.NATSAlertPublisher,
	logger *logger.Logger,
) {
	var checks []dependencyCheck
	if cfg.Source.Kind == config.SourceNeo4J {
		checks = append(checks, dependencyCheck{name: "neo4j", check: neo4jClient.IsConnected})
	}
	if cfg.NATS.Enabled {
		checks = append(checks, dependencyCheck{name: "nats", check: func(context.Context) bool { return publisher.IsConnected() }})
	}

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:           newQueryMux(analysisService, checks, cfg.Health.Timeout),
		ReadHeaderTimeout: cfg.Health.Timeout,
	}}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", analysisMetrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: cfg.Health.Timeout,
		})
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, server := range servers {
				logger.Info("Starting HTTP server...", zap.String("addr", server.Addr))
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("HTTP server error", zap.String("addr", server.Addr), zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP servers...")
			var errs []error
			for _, server := range servers {
				if err := server.Shutdown(ctx); err != nil {
					errs = append(errs, fmt.Errorf("failed to stop %s: %w", server.Addr, err))
				}
			}
			return errors.Join(errs...)
		},
	})
}

// newQueryMux serves health and read-only views of the last analysis run
func newQueryMux(analysisService *app_service.AnalysisApplicationService, checks []dependencyCheck, timeout time.Duration) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if _, ok := analysisService.LastReport(); !ok {
			body["status"] = "analyzing"
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		code := http.StatusOK
		for _, dependency := range checks {
			if dependency.check(ctx) {
				body[dependency.name] = "up"
				continue
			}
			body[dependency.name] = "down"
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, body)
	})

	mux.HandleFunc("GET /report", func(w http.ResponseWriter, r *http.Request) {
		report, ok := analysisService.LastReport()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, app_service.ErrNoAnalysis)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("GET /patterns", func(w http.ResponseWriter, r *http.Request) {
		patternType := entity.PatternType(r.URL.Query().Get("type"))
		if patternType != "" && !slices.Contains(entity.PatternTypes, patternType) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown pattern type %q", patternType))
			return
		}
		patterns, err := analysisService.Patterns(patternType)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		if patterns == nil {
			patterns = []*entity.SmurfingPattern{}
		}
		writeJSON(w, http.StatusOK, patterns)
	})

	mux.HandleFunc("GET /wallets/{address}", func(w http.ResponseWriter, r *http.Request) {
		hops := 2
		if raw := r.URL.Query().Get("hops"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hops %q", raw))
				return
			}
			hops = parsed
		}

		investigation, err := analysisService.Investigate(r.Context(), r.PathValue("address"), hops)
		switch {
		case errors.Is(err, app_service.ErrNoAnalysis):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, entity.ErrWalletNotFound):
			writeError(w, http.StatusNotFound, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, investigation)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
