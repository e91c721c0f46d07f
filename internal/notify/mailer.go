package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Mailer sends a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Info().Str("event", msg.Event).Str("to", msg.To).Str("subject", msg.Subject).Msg("Mail delivery disabled, message not sent")
	return nil
}

// MailScopes are the delegated permissions the refresh token was consented for.
var MailScopes = []string{"offline_access", "Mail.ReadWrite", "Mail.Send"}

// GraphConfig configures a GraphMailer.
type GraphConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBase      string
	RefreshToken string
	HTTPClient   *http.Client
}

// GraphMailer sends mail through the Graph sendMail API using a delegated refresh token.
type GraphMailer struct {
	oauth   oauth2.Config
	apiBase string
	client  *http.Client
	cache   TokenCache

	mu           sync.Mutex
	refreshToken string
}

// NewGraphMailer creates a new GraphMailer.
func NewGraphMailer(cfg GraphConfig, cache TokenCache) *GraphMailer {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &GraphMailer{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: MailScopes,
		},
		apiBase:      cfg.APIBase,
		client:       client,
		cache:        cache,
		refreshToken: cfg.RefreshToken,
	}
}

// AccessToken returns a cached access token or exchanges the refresh token for a new one.
func (m *GraphMailer) AccessToken(ctx context.Context) (string, error) {
	token, ok, err := m.cache.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Token cache read failed, refreshing")
	} else if ok {
		return token, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another sender may have refreshed while we waited.
	if token, ok, err := m.cache.Get(ctx); err == nil && ok {
		return token, nil
	}

	refresh := m.refreshToken
	if stored, ok, err := m.cache.RefreshToken(ctx); err != nil {
		log.Warn().Err(err).Msg("Token cache read failed, using local refresh token")
	} else if ok {
		refresh = stored
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, m.client)
	tok, err := m.oauth.TokenSource(exchangeCtx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint returned no access token")
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		m.refreshToken = tok.RefreshToken
		if err := m.cache.SetRefreshToken(ctx, tok.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("Failed to store rotated refresh token")
		}
		log.Info().Msg("Mail refresh token rotated")
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	if err := m.cache.Set(ctx, tok.AccessToken, expiry); err != nil {
		log.Warn().Err(err).Msg("Failed to cache access token")
	}
	return tok.AccessToken, nil
}

// Warmup fetches an access token ahead of the next send.
func (m *GraphMailer) Warmup(ctx context.Context) error {
	_, err := m.AccessToken(ctx)
	return err
}

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ToRecipients []recipient `json:"toRecipients"`
	Subject      string      `json:"subject"`
	Body         itemBody    `json:"body"`
	Importance   string      `json:"importance"`
}

type sendMailRequest struct {
	Message graphMessage `json:"message"`
}

// StatusError is an unexpected response from the mail API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mail API returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// Send posts msg to the sendMail endpoint. Only 202 Accepted counts as delivered.
func (m *GraphMailer) Send(ctx context.Context, msg Message) error {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(sendMailRequest{Message: graphMessage{
		ToRecipients: []recipient{{EmailAddress: emailAddress{Address: msg.To}}},
		Subject:      msg.Subject,
		Body:         itemBody{ContentType: "html", Content: msg.HTML},
		Importance:   "normal",
	}})
	if err != nil {
		return fmt.Errorf("failed to encode mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiBase+"/me/sendMail", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		log.Info().Str("event", msg.Event).Str("to", msg.To).Msg("Mail sent")
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		if err := m.cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate access token")
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
