package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Upsert stores the vector for a turn, replacing any previous one.
func (s *SQLiteStore) Upsert(ctx context.Context, id string, vector []float32) error {
	blob, err := encodeVector(vector)
	if err != nil {
		return err
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		query := `INSERT INTO MemoryRecords (turn_id, vector) VALUES (?, ?)
			ON CONFLICT(turn_id) DO UPDATE SET vector = excluded.vector`
		if _, err := conn.ExecContext(ctx, query, id, blob); err != nil {
			return fmt.Errorf("failed to upsert memory record %s: %w", id, err)
		}
		return nil
	})
}

// Query ranks every stored vector by cosine similarity. A linear scan is
// fine for a single user's history.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	var matches []Match
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT turn_id, vector FROM MemoryRecords`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				return err
			}
			stored, err := decodeVector(blob)
			if err != nil {
				continue
			}
			matches = append(matches, Match{ID: id, Score: cosineSimilarity(vector, stored)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
