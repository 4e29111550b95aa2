package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the local Long-Term Store. It implements TurnLog,
// VectorIndex, ConfigStore and FileStore over one database file plus an
// artifact directory.
type SQLiteStore struct {
	db          *sql.DB
	artifactDir string
}

func NewSQLiteStore(dbPath, artifactDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	if err := os.MkdirAll(artifactDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:          db,
		artifactDir: artifactDir,
	}

	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ChatHistory (
			id TEXT PRIMARY KEY,
			message TEXT NOT NULL,
			speaker TEXT NOT NULL,
			timestamp REAL NOT NULL,
			timestring TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS MemoryRecords (
			turn_id TEXT PRIMARY KEY,
			vector BLOB NOT NULL,
			FOREIGN KEY(turn_id) REFERENCES ChatHistory(id)
		);`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			path TEXT,
			type TEXT,
			created_at DATETIME,
			digest TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		for _, query := range queries {
			if _, err := conn.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to init schema: %w", err)
			}
		}
		return nil
	})
}

// withConn scopes one logical operation to a single pooled connection and
// returns it on every path.
func (s *SQLiteStore) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Turn log

func (s *SQLiteStore) InsertTurn(ctx context.Context, rec ChatRecord) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		query := `INSERT INTO ChatHistory (id, message, speaker, timestamp, timestring) VALUES (?, ?, ?, ?, ?)`
		if _, err := conn.ExecContext(ctx, query, rec.ID, rec.Message, rec.Speaker, rec.Timestamp, rec.Timestring); err != nil {
			return fmt.Errorf("failed to insert turn %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetTurn(ctx context.Context, id string) (*ChatRecord, error) {
	var rec ChatRecord
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		query := `SELECT id, message, speaker, timestamp, timestring FROM ChatHistory WHERE id = ?`
		err := conn.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Message, &rec.Speaker, &rec.Timestamp, &rec.Timestring)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("turn %s: %w", id, ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) CountTurns(ctx context.Context) (int, error) {
	var n int
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ChatHistory`).Scan(&n)
	})
	return n, err
}

// RecentTurns returns up to limit rows, oldest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []ChatRecord
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		query := `SELECT id, message, speaker, timestamp, timestring FROM ChatHistory ORDER BY timestamp DESC LIMIT ?`
		rows, err := conn.QueryContext(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r ChatRecord
			if err := rows.Scan(&r.ID, &r.Message, &r.Speaker, &r.Timestamp, &r.Timestring); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Configuration

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
		_, err := conn.ExecContext(ctx, query, key, value)
		return err
	})
}

// GetConfig returns "" for unknown keys.
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, `SELECT value FROM configuration WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	return value, err
}

// Artifacts

func (s *SQLiteStore) SaveArtifact(ctx context.Context, artifact *Artifact, content []byte) error {
	fullPath := filepath.Join(s.artifactDir, artifact.Path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write artifact content: %w", err)
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		query := `INSERT INTO artifacts (id, path, type, created_at, digest) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET path = excluded.path, type = excluded.type,
			created_at = excluded.created_at, digest = excluded.digest`
		_, err := conn.ExecContext(ctx, query, artifact.ID, artifact.Path, artifact.Type, artifact.CreatedAt, artifact.Digest)
		return err
	})
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, id string) (*Artifact, []byte, error) {
	var artifact Artifact
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		query := `SELECT id, path, type, created_at, digest FROM artifacts WHERE id = ?`
		err := conn.QueryRowContext(ctx, query, id).Scan(&artifact.ID, &artifact.Path, &artifact.Type, &artifact.CreatedAt, &artifact.Digest)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	fullPath := filepath.Join(s.artifactDir, artifact.Path)
	content, err := os.ReadFile(fullPath) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact content: %w", err)
	}

	return &artifact, content, nil
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context) ([]*Artifact, error) {
	var artifacts []*Artifact
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT id, path, type, created_at, digest FROM artifacts ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a Artifact
			if err := rows.Scan(&a.ID, &a.Path, &a.Type, &a.CreatedAt, &a.Digest); err != nil {
				return err
			}
			artifacts = append(artifacts, &a)
		}
		return rows.Err()
	})
	return artifacts, err
}
