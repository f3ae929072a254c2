package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// scopes needed to read, label and trash messages. Permanent deletion
// additionally requires the full mail scope.
func scopes(permanentDelete bool) []string {
	if permanentDelete {
		return []string{gmailv1.MailGoogleComScope}
	}
	return []string{gmailv1.GmailModifyScope, gmailv1.GmailLabelsScope}
}

// NewService builds a Gmail service for one account from the OAuth client
// credentials and the account's cached token. Refreshed tokens are written
// back to tokenFile.
func NewService(ctx context.Context, credentialsFile, tokenFile string, permanentDelete bool, logger *zap.Logger) (*gmailv1.Service, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credentialsFile, err)
	}

	cfg, err := google.ConfigFromJSON(b, scopes(permanentDelete)...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token at %s: %w", tokenFile, err)
	}

	ts := &persistingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		path:   tokenFile,
		last:   tok.AccessToken,
		logger: logger,
	}

	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// persistingTokenSource saves the token whenever the access token changes
type persistingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	last   string
	logger *zap.Logger
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := saveToken(p.path, tok); err != nil {
			p.logger.Warn("Failed to persist refreshed token", zap.String("path", p.path), zap.Error(err))
		} else {
			p.last = tok.AccessToken
		}
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, path)
}
