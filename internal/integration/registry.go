package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxRegistryBody caps how much of a registry response is read, guarding
// against a misbehaving endpoint.
const maxRegistryBody = 4 << 20

// Registry holds the current integration catalogue. It starts with a
// fallback catalogue (typically [Builtin]) and can refresh from a remote
// JSON endpoint; a failed refresh keeps the current catalogue and logs.
//
// Registry is safe for concurrent use.
type Registry struct {
	url      string
	client   *http.Client
	fallback []Descriptor

	mu          sync.RWMutex
	descriptors []Descriptor
}

// NewRegistry creates a [Registry] serving fallback until [Registry.Refresh]
// succeeds. url may be empty, in which case Refresh is a no-op and the
// fallback catalogue is permanent.
func NewRegistry(url string, fallback []Descriptor) *Registry {
	return &Registry{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		fallback: fallback,

		descriptors: fallback,
	}
}

// Refresh fetches the catalogue from the remote registry endpoint and swaps
// it in. On any failure the current catalogue stays in place and the error
// is logged; Refresh only returns an error for context cancellation so that
// startup never depends on registry availability.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.url == "" {
		return nil
	}

	descs, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("integration registry unreachable, keeping current catalogue",
			"url", r.url, "error", err)
		return nil
	}

	r.mu.Lock()
	r.descriptors = descs
	r.mu.Unlock()

	slog.Info("integration catalogue refreshed", "url", r.url, "integrations", len(descs))
	return nil
}

// fetch performs the registry HTTP round trip and decodes the catalogue.
func (r *Registry) fetch(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistryBody))
	if err != nil {
		return nil, fmt.Errorf("registry: read body: %w", err)
	}

	var descs []Descriptor
	if err := json.Unmarshal(body, &descs); err != nil {
		return nil, fmt.Errorf("registry: decode catalogue: %w", err)
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("registry: catalogue is empty")
	}
	for i, d := range descs {
		if d.ID == "" || d.Path == "" {
			return nil, fmt.Errorf("registry: descriptor %d missing id or path", i)
		}
	}
	return descs, nil
}

// Descriptors returns a snapshot of the current catalogue. The returned
// slice must not be mutated.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors
}

// Lookup returns the descriptor with the given ID.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.descriptors {
		if r.descriptors[i].ID == id {
			return &r.descriptors[i], true
		}
	}
	return nil, false
}

// Probe runs check concurrently against every integration in the catalogue
// and returns the per-integration outcome keyed by ID. It is used by the
// readiness endpoint; the broker itself never depends on probe results since
// sessions are opened per call.
//
// Probe returns an error only when ctx is cancelled before all checks finish.
func (r *Registry) Probe(ctx context.Context, check func(ctx context.Context, d Descriptor) error) (map[string]error, error) {
	descs := r.Descriptors()

	results := make([]error, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range descs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = check(gctx, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]error, len(descs))
	for i, d := range descs {
		out[d.ID] = results[i]
	}
	return out, nil
}
