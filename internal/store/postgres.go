package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the server-side Long-Term Store and Vector Index, using
// pgvector for nearest-neighbor queries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id TEXT PRIMARY KEY,
			message TEXT NOT NULL,
			speaker TEXT NOT NULL,
			timestamp DOUBLE PRECISION NOT NULL,
			timestring TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS memory_records (
			turn_id TEXT PRIMARY KEY REFERENCES chat_history(id),
			embedding vector NOT NULL
		);`,
	}

	return s.withConn(ctx, func(conn *pgxpool.Conn) error {
		for _, stmt := range stmts {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("init schema failed on %q: %w", stmt, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	return s.pool.AcquireFunc(ctx, fn)
}

func (s *PostgresStore) InsertTurn(ctx context.Context, rec ChatRecord) error {
	return s.withConn(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO chat_history (id, message, speaker, timestamp, timestring) VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, rec.Message, rec.Speaker, rec.Timestamp, rec.Timestring,
		)
		if err != nil {
			return fmt.Errorf("insert turn %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (s *PostgresStore) GetTurn(ctx context.Context, id string) (*ChatRecord, error) {
	var rec ChatRecord
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`SELECT id, message, speaker, timestamp, timestring FROM chat_history WHERE id = $1`, id,
		).Scan(&rec.ID, &rec.Message, &rec.Speaker, &rec.Timestamp, &rec.Timestring)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("turn %s: %w", id, ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) CountTurns(ctx context.Context) (int, error) {
	var n int
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, `SELECT COUNT(*) FROM chat_history`).Scan(&n)
	})
	return n, err
}

func (s *PostgresStore) RecentTurns(ctx context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var items []ChatRecord
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, message, speaker, timestamp, timestring FROM chat_history ORDER BY timestamp DESC LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r ChatRecord
			if err := rows.Scan(&r.ID, &r.Message, &r.Speaker, &r.Timestamp, &r.Timestring); err != nil {
				return fmt.Errorf("scan turn row: %w", err)
			}
			items = append(items, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, id string, vector []float32) error {
	return s.withConn(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO memory_records (turn_id, embedding) VALUES ($1, $2::vector)
			 ON CONFLICT (turn_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
			id, vectorLiteral(vector),
		)
		if err != nil {
			return fmt.Errorf("upsert memory record %s: %w", id, err)
		}
		return nil
	})
}

func (s *PostgresStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	var matches []Match
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT turn_id, 1 - (embedding <=> $1::vector) AS score
			 FROM memory_records ORDER BY embedding <=> $1::vector LIMIT $2`,
			vectorLiteral(vector), topK,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m Match
			var score float64
			if err := rows.Scan(&m.ID, &score); err != nil {
				return fmt.Errorf("scan match row: %w", err)
			}
			m.Score = float32(score)
			matches = append(matches, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query memory records: %w", err)
	}
	return matches, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a pgvector text literal such as "[0.1,0.2]".
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
