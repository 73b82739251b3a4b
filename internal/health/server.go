package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/pump-tracker/internal/buffer"
	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/track"
	"github.com/rickgao/pump-tracker/internal/upstream"
	"github.com/rickgao/pump-tracker/internal/writer"
)

// probedTables are checked for existence on every health request while the
// database is reachable.
var probedTables = []string{"coin_metrics", "coin_streams", "discovered_coins"}

// UpstreamStatus reports the WebSocket connection states.
type UpstreamStatus interface {
	Status() upstream.Status
}

// TrackerStats reports watchlist totals.
type TrackerStats interface {
	Stats() track.Stats
}

// BufferStats reports rolling buffer totals.
type BufferStats interface {
	Stats() buffer.Stats
}

// WriterStats reports metric persistence totals.
type WriterStats interface {
	Stats() writer.Stats
}

// Deps are the explicit dependencies of the HTTP surface. DB may be nil
// before the pool is established.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Registry

	DB       *pgxpool.Pool
	Upstream UpstreamStatus
	Tracker  TrackerStats
	Buffer   BufferStats
	Writer   WriterStats

	// Reload re-reads the runtime-tunable config and returns the effective
	// snapshot.
	Reload func() (map[string]any, error)

	StartedAt time.Time
}

type server struct {
	deps Deps
}

// NewRouter builds the HTTP handler. All endpoints carry permissive CORS
// headers for the deployment platform's probes.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &server{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleHealth) // orchestrator probe alias
	mux.Handle("/metrics", s.metricsHandler())
	mux.HandleFunc("/reload-config", s.handleReload)

	return corsMiddleware(s.recoverMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware keeps the health surface alive through handler panics,
// answering 500 instead of dropping the connection.
func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.deps.Logger.Error("health handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"status":         "error",
					"uptime_seconds": int64(time.Since(s.deps.StartedAt).Seconds()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status      string          `json:"status"`
	DBConnected bool            `json:"db_connected"`
	DBTables    map[string]bool `json:"db_tables"`
	WSConnected bool            `json:"ws_connected"`
	Streams     upstream.Status `json:"streams"`

	UptimeSeconds  int64  `json:"uptime_seconds"`
	TrackedTokens  int    `json:"tracked_tokens"`
	TotalTrades    int64  `json:"total_trades"`
	MetricsSaved   int64  `json:"total_metrics_saved"`
	LastMessageAgo *int64 `json:"last_message_ago"`
	ReconnectCount int    `json:"reconnect_count"`
	LastError      string `json:"last_error,omitempty"`

	BufferStats buffer.Stats `json:"buffer_stats"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	streams := s.deps.Upstream.Status()
	trackerStats := s.deps.Tracker.Stats()
	writerStats := s.deps.Writer.Stats()

	dbUp := s.pingDB(ctx)

	resp := healthResponse{
		DBConnected: dbUp,
		DBTables:    s.probeTables(ctx, dbUp),
		WSConnected: streams.Trade.Connected,
		Streams:     streams,

		UptimeSeconds:  int64(time.Since(s.deps.StartedAt).Seconds()),
		TrackedTokens:  trackerStats.TrackedTokens,
		TotalTrades:    trackerStats.TradesProcessed,
		MetricsSaved:   writerStats.RowsSaved,
		ReconnectCount: streams.Trade.ReconnectCount,
		LastError:      streams.LastError,
		BufferStats:    s.deps.Buffer.Stats(),
	}
	if !streams.LastMessageAt.IsZero() {
		ago := int64(time.Since(streams.LastMessageAt).Seconds())
		resp.LastMessageAgo = &ago
	}

	resp.Status = statusLabel(dbUp, resp.WSConnected)
	code := statusCode(dbUp, resp.WSConnected)

	w.Header().Set("X-Health-Status", resp.Status)
	writeJSON(w, code, resp)
}

// statusLabel and statusCode implement the probe contract: 200 while at
// least one link is up so a single-link outage does not trigger restart
// loops, 503 only when both are down.
func statusLabel(db, ws bool) string {
	if db && ws {
		return "healthy"
	}
	return "degraded"
}

func statusCode(db, ws bool) int {
	if db || ws {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func (s *server) pingDB(ctx context.Context) bool {
	if s.deps.DB == nil {
		return false
	}
	return s.deps.DB.Ping(ctx) == nil
}

// probeTables reports which expected tables exist. Probe failures read as
// absent; the health check itself never fails on them.
func (s *server) probeTables(ctx context.Context, dbUp bool) map[string]bool {
	tables := make(map[string]bool, len(probedTables))
	for _, name := range probedTables {
		tables[name] = false
	}
	if !dbUp {
		return tables
	}

	for _, name := range probedTables {
		var exists bool
		err := s.deps.DB.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, name).Scan(&exists)
		if err == nil {
			tables[name] = exists
		}
	}
	return tables
}

// metricsHandler refreshes the uptime and connection-age gauges before
// rendering the Prometheus export.
func (s *server) metricsHandler() http.Handler {
	inner := s.deps.Metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.deps.Metrics.UptimeSeconds.Set(time.Since(s.deps.StartedAt).Seconds())
		if st := s.deps.Upstream.Status(); st.Trade.Connected && !st.Trade.ConnectedSince.IsZero() {
			s.deps.Metrics.ConnectionDuration.Set(time.Since(st.Trade.ConnectedSince).Seconds())
		}
		inner.ServeHTTP(w, r)
	})
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"status":  "error",
			"message": "POST required",
		})
		return
	}

	snapshot, err := s.deps.Reload()
	if err != nil {
		s.deps.Logger.Error("config reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	s.deps.Logger.Info("configuration reloaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "configuration reloaded",
		"config":  snapshot,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
