package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

// InteractionRepository appends chat interactions to the chat_interactions table.
type InteractionRepository struct {
	db *sql.DB
}

func NewInteractionRepository(db *sql.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *InteractionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/mcp startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chat_interactions (
	id TEXT PRIMARY KEY,
	request_id TEXT,
	session_id TEXT,
	corpus TEXT NOT NULL,
	intent TEXT NOT NULL,
	retrieval_mode TEXT NOT NULL,
	query TEXT NOT NULL,
	chunk_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	answer TEXT NOT NULL,
	outcome TEXT NOT NULL,
	fragments INTEGER NOT NULL DEFAULT 0,
	latency_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_interactions_session ON chat_interactions(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chat_interactions_outcome ON chat_interactions(outcome);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *InteractionRepository) Record(ctx context.Context, in domain.Interaction) error {
	if in.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record interaction", errors.New("interaction id is required"))
	}
	chunkIDs := in.ChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	chunkIDsJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO chat_interactions (
	id, request_id, session_id, corpus, intent, retrieval_mode, query, chunk_ids, answer, outcome, fragments, latency_seconds, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING
`,
		in.ID, in.RequestID, in.SessionID, in.Corpus, string(in.Intent), in.RetrievalMode, in.Query,
		chunkIDsJSON, in.Answer, string(in.Outcome), in.Fragments, in.Latency, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}
