// Package googleauth builds OAuth2 HTTP clients for the Google tool backends
// from an installed-app credentials file and a previously saved token.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken means the operator has not completed the consent flow yet.
var ErrNoToken = errors.New("no saved oauth token")

// Client returns an HTTP client authorized for scopes. The token file must
// exist; refreshed tokens are kept in memory only.
func Client(ctx context.Context, credentialsFile, tokenFile string, scopes ...string) (*http.Client, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.Client(ctx, tok), nil
}

// LoadToken reads a JSON-encoded oauth2.Token.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, path)
		}
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}
