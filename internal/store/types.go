package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// Speaker values stored in ChatHistory.speaker.
const (
	SpeakerUser      = "USER"
	SpeakerAssistant = "ASSISTANT"
	SpeakerSystem    = "SYSTEM"
)

// ChatRecord is one row of ChatHistory. Message holds the display text.
type ChatRecord struct {
	ID         string
	Message    string
	Speaker    string
	Timestamp  float64 // unix seconds
	Timestring string
}

// Time converts the stored unix timestamp back to a time.Time.
func (r ChatRecord) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Match is one vector index hit.
type Match struct {
	ID    string
	Score float32
}

// Artifact is a named text blob written by the file tool.
type Artifact struct {
	ID        string
	Path      string // Relative path in the artifact store
	Type      string // e.g., "text"
	CreatedAt time.Time
	Digest    string // Content hash
}

// TurnLog is the durable, append-only log of conversation turns.
type TurnLog interface {
	InsertTurn(ctx context.Context, rec ChatRecord) error
	GetTurn(ctx context.Context, id string) (*ChatRecord, error)
	CountTurns(ctx context.Context) (int, error)
	RecentTurns(ctx context.Context, limit int) ([]ChatRecord, error)
}

// VectorIndex stores one vector per turn id and answers nearest-neighbor queries.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// ConfigStore persists key/value settings and secrets.
type ConfigStore interface {
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
}

// FileStore backs the write/read file tools.
type FileStore interface {
	SaveArtifact(ctx context.Context, artifact *Artifact, content []byte) error
	GetArtifact(ctx context.Context, id string) (*Artifact, []byte, error)
	ListArtifacts(ctx context.Context) ([]*Artifact, error)
}

func encodeVector(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vector, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}
