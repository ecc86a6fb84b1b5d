package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dshills/flowlaws/flow"
)

// ErrUnavailable is returned when an HTTP lookup gets an unexpected status.
var ErrUnavailable = errors.New("lookup service unavailable")

// HTTP is a lookup service backed by an HTTP endpoint.
//
// Lookup issues GET {base}/lookup?key={json key}. A 200 response carries the
// JSON-encoded value; a 404 response is a miss. Any other status yields an
// error wrapping ErrUnavailable.
type HTTP[K comparable, J any] struct {
	base   string
	client *http.Client
}

// NewHTTP creates a client for the service at base. A nil client uses
// http.DefaultClient; timeouts come from the lookup context.
func NewHTTP[K comparable, J any](base string, client *http.Client) *HTTP[K, J] {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP[K, J]{base: strings.TrimSuffix(base, "/"), client: client}
}

// Lookup implements flow.Service.
func (h *HTTP[K, J]) Lookup(ctx context.Context, key K) (flow.Option[J], error) {
	rawKey, err := json.Marshal(key)
	if err != nil {
		return flow.None[J](), fmt.Errorf("encode key: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+"/lookup?key="+url.QueryEscape(string(rawKey)), nil)
	if err != nil {
		return flow.None[J](), fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return flow.None[J](), fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return flow.None[J](), fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var v J
		if err := json.Unmarshal(body, &v); err != nil {
			return flow.None[J](), fmt.Errorf("decode value for key %s: %w", rawKey, err)
		}
		return flow.Some(v), nil
	case http.StatusNotFound:
		return flow.None[J](), nil
	default:
		return flow.None[J](), fmt.Errorf("%w: key %s: status %d", ErrUnavailable, rawKey, resp.StatusCode)
	}
}

// Handler serves the lookups of svc in the format HTTP expects.
func Handler[K comparable, J any](svc flow.Service[K, J]) http.Handler {
	r := chi.NewRouter()
	r.Get("/lookup", func(w http.ResponseWriter, req *http.Request) {
		var key K
		if err := json.Unmarshal([]byte(req.URL.Query().Get("key")), &key); err != nil {
			http.Error(w, "bad key: "+err.Error(), http.StatusBadRequest)
			return
		}
		res, err := svc.Lookup(req.Context(), key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		v, ok := res.Get()
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	})
	return r
}
