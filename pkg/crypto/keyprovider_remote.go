package crypto

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

// RemoteKeyProvider fetches a key via HTTPS GET to
// {Endpoint}/keys/{KeyID}, retrying with linear backoff.
type RemoteKeyProvider struct {
	Endpoint    string
	KeyID       string
	BearerToken string
	TLSConfig   *tls.Config
	MaxRetries  int
	RetryDelay  time.Duration // base delay; attempt N waits N*RetryDelay
	Timeout     time.Duration // per-attempt timeout

	client *http.Client
}

// NewRemoteKeyProvider constructs a provider with sane defaults for
// retries/backoff/timeout when the zero value is passed for them.
func NewRemoteKeyProvider(endpoint, keyID string) *RemoteKeyProvider {
	return &RemoteKeyProvider{
		Endpoint:   endpoint,
		KeyID:      keyID,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

type remoteKeyResponse struct {
	KeyID     string  `json:"keyId"`
	Key       string  `json:"key"` // base64, 32 bytes decoded
	ExpiresAt *string `json:"expiresAt,omitempty"`
}

func (p *RemoteKeyProvider) httpClient() *http.Client {
	if p.client != nil {
		return p.client
	}
	transport := &http.Transport{}
	if p.TLSConfig != nil {
		transport.TLSClientConfig = p.TLSConfig
	}
	p.client = &http.Client{Transport: transport}
	return p.client
}

func (p *RemoteKeyProvider) FetchKey(ctx context.Context) (KeyMaterial, error) {
	url := fmt.Sprintf("%s/keys/%s", p.Endpoint, p.KeyID)

	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		km, err := p.fetchOnce(ctx, url)
		if err == nil {
			return km, nil
		}
		lastErr = err

		if attempt < p.MaxRetries {
			delay := time.Duration(attempt) * p.RetryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return KeyMaterial{}, &dberrors.KeyServiceUnavailableError{Endpoint: p.Endpoint, Attempts: attempt, Cause: ctx.Err()}
			}
		}
	}

	return KeyMaterial{}, &dberrors.KeyServiceUnavailableError{Endpoint: p.Endpoint, Attempts: p.MaxRetries, Cause: lastErr}
}

func (p *RemoteKeyProvider) fetchOnce(ctx context.Context, url string) (KeyMaterial, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if p.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return KeyMaterial{}, err
	}
	if p.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.BearerToken)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return KeyMaterial{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return KeyMaterial{}, fmt.Errorf("key service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return KeyMaterial{}, err
	}

	var parsed remoteKeyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return KeyMaterial{}, fmt.Errorf("malformed key response: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(parsed.Key)
	if err != nil || len(key) != KeySize {
		return KeyMaterial{}, fmt.Errorf("key response did not contain a 32-byte base64 key")
	}

	km := KeyMaterial{KeyID: parsed.KeyID, Key: key}
	if parsed.ExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *parsed.ExpiresAt); err == nil {
			km.ExpiresAt = &t
		}
	}
	return km, nil
}

func (p *RemoteKeyProvider) Close() error { return nil }
