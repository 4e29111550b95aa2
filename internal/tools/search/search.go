// Package search implements the web search tool: fetch a results page for a
// query and hand its visible text back to the model.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/observe"
)

const Tag = "googsearch"

// Searcher returns the visible text of the results page for query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Handler adapts a Searcher to the command protocol.
type Handler struct {
	searcher Searcher
	limit    func() int
	now      func() time.Time
	obs      *observe.Observer
}

// NewHandler builds the search handler. limit is read on every call so
// operator changes to the page-text cap apply to the next search.
func NewHandler(s Searcher, limit func() int, obs *observe.Observer) *Handler {
	return &Handler{searcher: s, limit: limit, now: time.Now, obs: obs}
}

func (h *Handler) Spec() command.Spec {
	return command.Spec{
		Tag:         Tag,
		Description: "Search the web; put the query after the tag.",
		Required:    [][]string{{command.BodyArg, "query", "q"}},
	}
}

func (h *Handler) Handle(ctx context.Context, inv *command.Invocation) (string, error) {
	query := inv.Value(command.BodyArg, "query", "q")

	text, err := h.searcher.Search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	text = Truncate(text, h.limit())
	h.obs.Log().Info().Str("query", query).Int("chars", utf8.RuneCountInString(text)).Msg("web search complete")

	return fmt.Sprintf("Here is the text of the results page of your web search for %q at %s. "+
		"You can read through it to infer information, then respond to the user: %s",
		query, h.now().Format("2006-01-02 15:04:05.000000"), text), nil
}

// Truncate keeps the first n characters (runes) of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// collapse squeezes whitespace runs into single spaces and blank lines.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
