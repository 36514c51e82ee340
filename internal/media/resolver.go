package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cutroom/internal/services"
)

// Resolver turns opaque media references into something playable. Implemented
// by the external media service; faked in tests.
type Resolver interface {
	// Resolve returns a playable URL for the reference.
	Resolve(ctx context.Context, ref string) (string, error)
	// FetchRaw downloads the raw source bytes for the reference.
	FetchRaw(ctx context.Context, ref string) ([]byte, error)
}

// HTTPResolver talks to the media resolver service over HTTP.
type HTTPResolver struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPResolver constructs a resolver client against baseURL.
func NewHTTPResolver(baseURL, token string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type resolveResponse struct {
	URL string `json:"url"`
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if r.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "resolver", "resolve", "resolver base url not configured", nil)
	}
	endpoint := fmt.Sprintf("%s/media/%s/url", r.baseURL, url.PathEscape(ref))
	body, err := r.get(ctx, endpoint, ref)
	if err != nil {
		return "", err
	}
	var decoded resolveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "resolver", "resolve", "decode response", err)
	}
	if strings.TrimSpace(decoded.URL) == "" {
		return "", services.Wrap(services.ErrNotFound, "resolver", "resolve", fmt.Sprintf("media %s has no playable url", ref), nil)
	}
	return decoded.URL, nil
}

// FetchRaw implements Resolver.
func (r *HTTPResolver) FetchRaw(ctx context.Context, ref string) ([]byte, error) {
	if r.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "resolver", "fetch", "resolver base url not configured", nil)
	}
	endpoint := fmt.Sprintf("%s/media/%s/raw", r.baseURL, url.PathEscape(ref))
	return r.get(ctx, endpoint, ref)
}

func (r *HTTPResolver) get(ctx context.Context, endpoint, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "resolver", "request", "", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "resolver", "request", ref, err)
		}
		return nil, services.Wrap(services.ErrTransient, "resolver", "request", ref, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "resolver", "request", fmt.Sprintf("media %s not found", ref), nil)
	case resp.StatusCode >= 400:
		return nil, services.Wrap(services.ErrTransient, "resolver", "request", fmt.Sprintf("media %s: status %d", ref, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "resolver", "read body", ref, err)
	}
	return body, nil
}
