package storage

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/okvist/packmule/internal/config"
)

func oauthConfig(cfg *config.DriveConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
	}
}

// authorize walks the out-of-band authorization flow on the terminal: print
// the consent URL, read the resulting code, exchange it for a token.
func authorize(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error) {
	url := oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open the following link in your browser, then paste the code here:\n%s\n> ", url)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// tokenFromRecord rebuilds the live token from its persisted form. The
// absolute expiry is issued_at + expires_in; a record without either yields
// a token with no expiry.
func tokenFromRecord(rec config.TokenRecord) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		TokenType:    rec.TokenType,
		RefreshToken: rec.RefreshToken,
	}
	if rec.IssuedAt > 0 && rec.ExpiresIn > 0 {
		tok.Expiry = time.Unix(rec.IssuedAt+rec.ExpiresIn, 0)
	}
	return tok
}

// recordFromToken converts a live token into its persisted form. issued_at
// is stamped now and expires_in derived against it, which keeps the
// absolute expiry exact across the round trip.
func recordFromToken(tok *oauth2.Token) config.TokenRecord {
	rec := config.TokenRecord{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		rec.IssuedAt = time.Now().Unix()
		rec.ExpiresIn = tok.Expiry.Unix() - rec.IssuedAt
	}
	return rec
}
