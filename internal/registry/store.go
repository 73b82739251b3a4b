package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/model"
)

// gapCheckInterval throttles the stream-gap consistency check.
const gapCheckInterval = 60 * time.Second

// Store is the registry surface the tracker depends on.
type Store interface {
	// LoadPhases returns all phase definitions ordered by id ascending.
	LoadPhases(ctx context.Context) ([]model.Phase, error)

	// ActiveStreams returns every token with is_active = true, keyed by
	// token address.
	ActiveStreams(ctx context.Context) (map[string]model.ActiveToken, error)

	// SwitchPhase promotes a token to a new phase.
	SwitchPhase(ctx context.Context, token string, oldPhase, newPhase int) error

	// StopTracking deactivates a token, recording whether it graduated or
	// simply aged out.
	StopTracking(ctx context.Context, token string, graduated bool) error
}

type pgStore struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *metrics.Registry

	mu           sync.Mutex
	lastGapCheck time.Time
}

// NewStore creates a Postgres-backed registry store.
func NewStore(pool *pgxpool.Pool, reg *metrics.Registry, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &pgStore{
		pool:    pool,
		logger:  logger,
		metrics: reg,
	}
}

func (s *pgStore) LoadPhases(ctx context.Context) ([]model.Phase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, interval_seconds, max_age_minutes FROM ref_coin_phases ORDER BY id ASC`)
	if err != nil {
		s.metrics.DBErrors.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("load phases: %w", err)
	}
	defer rows.Close()

	var phases []model.Phase
	for rows.Next() {
		var (
			p               model.Phase
			intervalSeconds int
			maxAgeMinutes   int
		)
		if err := rows.Scan(&p.ID, &p.Name, &intervalSeconds, &maxAgeMinutes); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		p.Interval = time.Duration(intervalSeconds) * time.Second
		p.MaxAge = time.Duration(maxAgeMinutes) * time.Minute
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		s.metrics.DBErrors.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("load phases: %w", err)
	}

	return phases, nil
}

func (s *pgStore) ActiveStreams(ctx context.Context) (map[string]model.ActiveToken, error) {
	start := time.Now()
	defer func() {
		s.metrics.DBQueryDuration.Observe(time.Since(start).Seconds())
	}()

	// Recreate streams the discovery side missed. The function may not be
	// installed yet, so failures are ignored.
	if _, err := s.pool.Exec(ctx, `SELECT repair_missing_streams()`); err != nil {
		s.logger.Debug("repair_missing_streams unavailable", "error", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT cs.token_address, cs.current_phase_id, dc.token_created_at, cs.started_at, dc.trader_public_key
		FROM coin_streams cs
		JOIN discovered_coins dc ON cs.token_address = dc.token_address
		WHERE cs.is_active = TRUE
	`)
	if err != nil {
		s.metrics.DBErrors.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("active streams: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	active := make(map[string]model.ActiveToken)
	for rows.Next() {
		var (
			token     string
			phaseID   int
			createdAt *time.Time
			startedAt *time.Time
			creator   *string
		)
		if err := rows.Scan(&token, &phaseID, &createdAt, &startedAt, &creator); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		active[token] = activeTokenFromRow(token, phaseID, createdAt, startedAt, creator, now)
	}
	if err := rows.Err(); err != nil {
		s.metrics.DBErrors.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("active streams: %w", err)
	}

	s.checkStreamGaps(ctx)

	return active, nil
}

// activeTokenFromRow normalizes a joined registry row. Missing creation
// timestamps fall back to now; missing start timestamps fall back to the
// creation time. All times are UTC.
func activeTokenFromRow(token string, phaseID int, createdAt, startedAt *time.Time, creator *string, now time.Time) model.ActiveToken {
	at := model.ActiveToken{
		TokenAddress: token,
		PhaseID:      phaseID,
	}

	if createdAt != nil {
		at.CreatedAt = createdAt.UTC()
	} else {
		at.CreatedAt = now
	}
	if startedAt != nil {
		at.StartedAt = startedAt.UTC()
	} else {
		at.StartedAt = at.CreatedAt
	}
	if creator != nil {
		at.CreatorAddress = *creator
	}

	return at
}

// checkStreamGaps warns about active coins missing a stream row, at most
// once per gapCheckInterval. The check function may not be installed.
func (s *pgStore) checkStreamGaps(ctx context.Context) {
	s.mu.Lock()
	due := time.Since(s.lastGapCheck) > gapCheckInterval
	if due {
		s.lastGapCheck = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}

	var (
		missing int
		coins   []string
	)
	err := s.pool.QueryRow(ctx, `SELECT missing_streams_count, coins_without_streams FROM check_stream_gaps()`).
		Scan(&missing, &coins)
	if err != nil {
		s.logger.Debug("check_stream_gaps unavailable", "error", err)
		return
	}
	if missing > 0 {
		if len(coins) > 5 {
			coins = coins[:5]
		}
		s.logger.Warn("coins without streams detected", "count", missing, "sample", coins)
	}
}

func (s *pgStore) SwitchPhase(ctx context.Context, token string, oldPhase, newPhase int) error {
	s.logger.Info("phase upgrade", "token", token, "old_phase", oldPhase, "new_phase", newPhase)

	_, err := s.pool.Exec(ctx,
		`UPDATE coin_streams SET current_phase_id = $1 WHERE token_address = $2`,
		newPhase, token)
	if err != nil {
		s.metrics.DBErrors.WithLabelValues("update").Inc()
		return fmt.Errorf("switch phase %s: %w", token, err)
	}

	s.metrics.PhaseSwitches.Inc()
	return nil
}

func (s *pgStore) StopTracking(ctx context.Context, token string, graduated bool) error {
	finalPhase := model.PhaseFinished
	if graduated {
		finalPhase = model.PhaseGraduated
		s.logger.Info("token graduated, tracking stopped", "token", token)
	} else {
		s.logger.Info("token lifecycle finished", "token", token)
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE coin_streams
		SET is_active = FALSE,
		    current_phase_id = $2,
		    is_graduated = $3
		WHERE token_address = $1
	`, token, finalPhase, graduated)
	if err != nil {
		s.metrics.DBErrors.WithLabelValues("update").Inc()
		return fmt.Errorf("stop tracking %s: %w", token, err)
	}

	if graduated {
		s.metrics.CoinsGraduated.Inc()
	} else {
		s.metrics.CoinsFinished.Inc()
	}
	return nil
}
