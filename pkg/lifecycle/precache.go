package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/finsight/offline-proxy/pkg/tier"
)

type precacheResult struct {
	path string
	snap *tier.Snapshot
	err  error
}

// precache fetches every manifest entry through a bounded worker pool and
// returns the captured snapshots keyed by path. Any single failure cancels
// the remaining fetches and fails the whole batch; nothing is written here.
func (m *Manager) precache(ctx context.Context) (map[string]*tier.Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths := make(chan string, len(m.cfg.Manifest))
	results := make(chan precacheResult, len(m.cfg.Manifest))

	for _, path := range m.cfg.Manifest {
		paths <- path
	}
	close(paths)

	var wg sync.WaitGroup
	for w := 0; w < m.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				select {
				case <-ctx.Done():
					return
				default:
				}
				snap, err := m.fetchEntry(ctx, path)
				results <- precacheResult{path: path, snap: snap, err: err}
				if err != nil {
					cancel()
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	snapshots := make(map[string]*tier.Snapshot, len(m.cfg.Manifest))
	for res := range results {
		if res.err != nil {
			m.logger.Error().Err(res.err).Str("path", res.path).Msg("Manifest entry failed, aborting install")
			return nil, res.err
		}
		snapshots[res.path] = res.snap
	}

	if len(snapshots) != len(m.cfg.Manifest) {
		return nil, fmt.Errorf("precache incomplete: %d of %d entries fetched",
			len(snapshots), len(m.cfg.Manifest))
	}
	return snapshots, nil
}

func (m *Manager) fetchEntry(ctx context.Context, path string) (*tier.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.Origin+path, nil)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}

	resp, err := m.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}

	snap, err := tier.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}

	m.logger.Debug().Str("path", path).Int("bytes", len(snap.Body)).Msg("Precached manifest entry")
	return snap, nil
}
