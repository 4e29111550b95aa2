// Package memory assembles the retrieved-memory segment of each prompt.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/store"
)

// WindowSize is the number of most recent raw texts embedded per query.
const WindowSize = 4

const (
	memoryHeader = "These are the most semantically similar past messages to the newest user message: \n\n"
	noHits       = "There are no semantically similar past messages for the newest user message. Answer from the current conversation."
	reminder     = `REMEMBER NOT TO INCLUDE "ASSISTANT" OR THE TIMESTAMP AT THE BEGINNING OF YOUR RESPONSE. ONLY INCLUDE YOUR ACTUAL RESPONSE!` + "\n\n"
)

// Result is the retrieved-memory segment for one turn.
type Result struct {
	Messages []provider.Message // always two system messages
	Hits     int
	Query    string
}

// Assembler is the Retrieval Assembler.
type Assembler struct {
	embedder provider.Embedder
	index    store.VectorIndex
	log      store.TurnLog
	obs      *observe.Observer
}

func NewAssembler(e provider.Embedder, idx store.VectorIndex, log store.TurnLog, obs *observe.Observer) *Assembler {
	return &Assembler{embedder: e, index: idx, log: log, obs: obs}
}

// Retrieve embeds window joined by blank lines once, queries the index for
// topK hits and resolves each to its stored display text in index order.
// Hits whose turn row is missing are skipped.
func (a *Assembler) Retrieve(ctx context.Context, window []string, topK int) (Result, error) {
	res := Result{Query: strings.Join(window, "\n\n")}

	vec, err := a.embedder.Embed(ctx, res.Query)
	if err != nil {
		return res, fmt.Errorf("embed retrieval window: %w", err)
	}

	matches, err := a.index.Query(ctx, vec, topK)
	if err != nil {
		return res, fmt.Errorf("query vector index: %w", err)
	}

	var texts []string
	for _, m := range matches {
		rec, err := a.log.GetTurn(ctx, m.ID)
		if errors.Is(err, store.ErrNotFound) {
			a.obs.Log().Warn().Str("turn_id", m.ID).Msg("memory record without stored turn")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("resolve hit %s: %w", m.ID, err)
		}
		texts = append(texts, rec.Message)
	}

	res.Hits = len(texts)
	res.Messages = Messages(texts)
	return res, nil
}

// Messages builds the two system messages for the given display texts: the
// memory block (or the no-hit instruction) and the formatting reminder.
func Messages(texts []string) []provider.Message {
	first := noHits
	if len(texts) > 0 {
		first = memoryHeader + strings.Join(texts, "\n\n") + "\n\n"
	}
	return []provider.Message{
		{Role: provider.RoleSystem, Content: first},
		{Role: provider.RoleSystem, Content: reminder},
	}
}
