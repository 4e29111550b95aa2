// Package files implements the write-file and read-file tools on top of the
// artifact store.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/store"
)

const (
	WriteTag = "wtext"
	ReadTag  = "rtext"
)

var fileKeys = []string{"file", "file_id", "fileid", "id"}

type Writer struct {
	files store.FileStore
	guard *guard.Guard
	now   func() time.Time
	obs   *observe.Observer
}

func NewWriter(fs store.FileStore, g *guard.Guard, obs *observe.Observer) *Writer {
	return &Writer{files: fs, guard: g, now: time.Now, obs: obs}
}

func (w *Writer) Spec() command.Spec {
	return command.Spec{
		Tag:         WriteTag,
		Description: "Write text to a named file.",
		Required: [][]string{
			fileKeys,
			{"text", command.BodyArg},
		},
	}
}

func (w *Writer) Handle(ctx context.Context, inv *command.Invocation) (string, error) {
	id := inv.Value(fileKeys...)
	text := inv.Value("text", command.BodyArg)

	if v := w.guard.CheckFile(id); v != nil {
		return "", v
	}
	if v := w.guard.CheckSize(len(text)); v != nil {
		return "", v
	}

	sum := sha256.Sum256([]byte(text))
	artifact := &store.Artifact{
		ID:        id,
		Path:      id,
		Type:      "text",
		CreatedAt: w.now().UTC(),
		Digest:    hex.EncodeToString(sum[:]),
	}
	if err := w.files.SaveArtifact(ctx, artifact, []byte(text)); err != nil {
		return "", fmt.Errorf("write %s: %w", id, err)
	}
	w.obs.Log().Info().Str("file", id).Int("bytes", len(text)).Msg("file written")
	return fmt.Sprintf("You have successfully written %d characters to the file %s.", utf8.RuneCountInString(text), id), nil
}

type Reader struct {
	files store.FileStore
	guard *guard.Guard
	obs   *observe.Observer
}

func NewReader(fs store.FileStore, g *guard.Guard, obs *observe.Observer) *Reader {
	return &Reader{files: fs, guard: g, obs: obs}
}

func (r *Reader) Spec() command.Spec {
	return command.Spec{
		Tag:         ReadTag,
		Description: "Read a named file.",
		Required:    [][]string{append(append([]string{}, fileKeys...), command.BodyArg)},
		Ephemeral:   true,
	}
}

func (r *Reader) Handle(ctx context.Context, inv *command.Invocation) (string, error) {
	id := inv.Value(append(append([]string{}, fileKeys...), command.BodyArg)...)
	if v := r.guard.CheckFile(id); v != nil {
		return "", v
	}

	_, content, err := r.files.GetArtifact(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		known, listErr := r.files.ListArtifacts(ctx)
		if listErr != nil {
			return "", fmt.Errorf("read %s: %w", id, err)
		}
		ids := make([]string, 0, len(known))
		for _, a := range known {
			ids = append(ids, a.ID)
		}
		return "", fmt.Errorf("read %s: %w (known files: %s)", id, err, strings.Join(ids, ", "))
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", id, err)
	}
	r.obs.Log().Info().Str("file", id).Int("bytes", len(content)).Msg("file read")
	return fmt.Sprintf("Here are the contents of the file %s:\n\n%s", id, content), nil
}
