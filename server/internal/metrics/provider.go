package metrics

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
)

// Provider computes the next metrics snapshot in place. A non-nil error
// means the update is skipped and nothing is published.
type Provider interface {
	Apply(ctx context.Context, snap *types.MetricsSnapshot) error
}

// RandomProvider moves each metric by a bounded random delta per call:
// active users by [-10,10], revenue by [-50000,50000] and load by (-5,5).
// Clamping is left to the Store.
type RandomProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomProvider returns a RandomProvider. A zero seed draws a random one.
func NewRandomProvider(seed uint64) *RandomProvider {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomProvider{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Apply implements Provider.
func (p *RandomProvider) Apply(_ context.Context, snap *types.MetricsSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap.ActiveUsers += p.rng.Int64N(21) - 10
	snap.TotalRevenue += p.rng.Int64N(100001) - 50000
	snap.ServerLoad += p.rng.Float64()*10 - 5
	return nil
}

// HostProvider runs Base and then replaces ServerLoad with the host's CPU
// utilisation percentage.
type HostProvider struct {
	Base Provider

	percent func(ctx context.Context) (float64, error)
}

// NewHostProvider wraps base with a gopsutil CPU sampler.
func NewHostProvider(base Provider) *HostProvider {
	return &HostProvider{Base: base, percent: hostCPUPercent}
}

// Apply implements Provider.
func (p *HostProvider) Apply(ctx context.Context, snap *types.MetricsSnapshot) error {
	if p.Base != nil {
		if err := p.Base.Apply(ctx, snap); err != nil {
			return err
		}
	}
	pct, err := p.percent(ctx)
	if err != nil {
		return fmt.Errorf("host provider: %w", err)
	}
	snap.ServerLoad = pct
	return nil
}

// hostCPUPercent returns the aggregate CPU usage since the previous call.
func hostCPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("cpu percent: no samples")
	}
	return pcts[0], nil
}

// NewProvider builds the Provider selected by cfg.Provider.
func NewProvider(cfg config.MetricsConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "random":
		return NewRandomProvider(cfg.Seed), nil
	case "host":
		return NewHostProvider(NewRandomProvider(cfg.Seed)), nil
	case "scrape":
		return NewScrapeProvider(cfg.Scrape), nil
	default:
		return nil, fmt.Errorf("metrics: unsupported provider %q", cfg.Provider)
	}
}

// InitialSnapshot converts configured start values into a snapshot.
func InitialSnapshot(cfg config.InitialMetrics) types.MetricsSnapshot {
	return types.MetricsSnapshot{
		ActiveUsers:  cfg.ActiveUsers,
		TotalRevenue: cfg.TotalRevenue,
		ServerLoad:   cfg.ServerLoad,
		Uptime:       cfg.Uptime,
	}
}
