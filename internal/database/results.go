// internal/database/results.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trivia_results (
	id         BIGSERIAL PRIMARY KEY,
	lobby_code TEXT        NOT NULL,
	lobby_name TEXT        NOT NULL DEFAULT '',
	ended_at   TIMESTAMPTZ NOT NULL,
	winner_id  TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS trivia_result_players (
	result_id BIGINT  NOT NULL REFERENCES trivia_results (id) ON DELETE CASCADE,
	player_id TEXT    NOT NULL,
	name      TEXT    NOT NULL,
	score     INTEGER NOT NULL,
	did_win   BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (result_id, player_id)
);
CREATE INDEX IF NOT EXISTS trivia_results_lobby_code_idx ON trivia_results (lobby_code);
`

// ResultWriter archives finished games in PostgreSQL.
type ResultWriter struct {
	pool *pgxpool.Pool
}

func NewResultWriter(pool *pgxpool.Pool) *ResultWriter {
	return &ResultWriter{pool: pool}
}

// EnsureSchema creates the archive tables if they do not exist.
func (w *ResultWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create results schema: %w", err)
	}
	return nil
}

// WriteResults stores a batch of results in one transaction. Either the whole
// batch lands or none of it does.
func (w *ResultWriter) WriteResults(ctx context.Context, results []models.GameResult) error {
	if len(results) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, w.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, r := range results {
			if err := insertResultTx(ctx, tx, r); err != nil {
				return fmt.Errorf("insert result for lobby %s: %w", r.LobbyCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx write results: %w", err)
	}
	return nil
}

func insertResultTx(ctx context.Context, tx pgx.Tx, r models.GameResult) error {
	var winner *string
	if r.WinnerID != "" {
		winner = &r.WinnerID
	}

	var resultID int64
	q := `
		INSERT INTO trivia_results (lobby_code, lobby_name, ended_at, winner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := tx.QueryRow(ctx, q, r.LobbyCode, r.LobbyName, time.UnixMilli(r.EndedAt).UTC(), winner).Scan(&resultID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range r.Players {
		batch.Queue(`
			INSERT INTO trivia_result_players (result_id, player_id, name, score, did_win)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (result_id, player_id) DO UPDATE SET score = $4, did_win = $5
		`, resultID, p.PlayerID, p.Name, p.Score, p.Won)
	}
	return tx.SendBatch(ctx, batch).Close()
}
