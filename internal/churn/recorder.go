package churn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"go-journey/internal/journey"
)

// RiskLevel buckets a churn probability
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Level returns the risk bucket for p
func Level(p float64) RiskLevel {
	switch {
	case p >= 0.7:
		return RiskHigh
	case p >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS churn_predictions (
	id             BIGSERIAL PRIMARY KEY,
	member_id      TEXT NOT NULL,
	churn_score    DOUBLE PRECISION NOT NULL,
	risk_level     TEXT NOT NULL,
	mission_id     TEXT NOT NULL,
	stage_id       TEXT NOT NULL,
	recommendation TEXT,
	predicted_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS churn_predictions_member_idx ON churn_predictions (member_id, predicted_at);`

const insertPrediction = `
INSERT INTO churn_predictions (member_id, churn_score, risk_level, mission_id, stage_id, recommendation, predicted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Recorder appends one churn prediction row per committed refresh
type Recorder struct {
	db     execer
	logger *zap.Logger
}

// Connect opens a pgx pool for dsn
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewRecorder wraps a pool (or any pgx executor)
func NewRecorder(db execer, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, logger: logger.Named("churn")}
}

// Migrate creates the predictions table
func (r *Recorder) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create churn_predictions: %w", err)
	}
	return nil
}

// Record stores the churn estimate carried by a refresh
func (r *Recorder) Record(ctx context.Context, e journey.Event) error {
	at := e.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	p := e.Current.ChurnProbability
	_, err := r.db.Exec(ctx, insertPrediction,
		e.MemberID, p, string(Level(p)), e.Current.MissionID, e.Current.StageID, e.Current.LastRecommendation, at)
	if err != nil {
		return fmt.Errorf("failed to insert churn prediction: %w", err)
	}
	r.logger.Debug("Recorded churn prediction",
		zap.String("member_id", e.MemberID),
		zap.Float64("score", p),
		zap.String("risk", string(Level(p))))
	return nil
}

// Listener adapts the recorder to the journey notifier
func (r *Recorder) Listener() journey.Listener {
	return func(e journey.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Record(ctx, e); err != nil {
			r.logger.Warn("Churn record failed", zap.String("member_id", e.MemberID), zap.Error(err))
		}
	}
}
