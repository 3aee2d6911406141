package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const RedirectPath = "/redirect"

// ForwardRequest is the body accepted on RedirectPath.
type ForwardRequest struct {
	URI string `json:"uri"`
}

type ForwardResponse struct {
	Handled bool `json:"handled"`
}

// Forwarder hands a redirect URI received by a second process to the primary
// instance's loopback listener.
type Forwarder struct {
	baseURL string
	client  *http.Client
}

func NewForwarder(baseURL string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Forwarder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *Forwarder) Forward(ctx context.Context, uri string) (bool, error) {
	body, err := json.Marshal(&ForwardRequest{URI: uri})
	if err != nil {
		return false, fmt.Errorf("failed to encode redirect: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+RedirectPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach primary instance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("primary instance returned status %d", resp.StatusCode)
	}

	var fr ForwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return false, fmt.Errorf("failed to decode forward response: %w", err)
	}
	return fr.Handled, nil
}

// HandleRedirect implements RedirectHandler; transport failures count as not
// handled.
func (f *Forwarder) HandleRedirect(uri string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), f.client.Timeout)
	defer cancel()

	handled, err := f.Forward(ctx, uri)
	return err == nil && handled
}
