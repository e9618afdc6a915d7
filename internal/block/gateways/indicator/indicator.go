// Package indicator shows the blocker's on/off appearance. With no toolbar
// to paint, the appearance is a Prometheus gauge and a log line.
package indicator

import (
	"context"
	"fmt"
	"sync"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/domain"
)

type Indicator struct {
	metrics *metrics.Metrics
	logger  log.Logger

	mu      sync.RWMutex
	current domain.Indicator
}

// New returns an Indicator showing "off".
func New(m *metrics.Metrics, logger log.Logger) *Indicator {
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	m.Indicator.Set(0)
	return &Indicator{metrics: m, logger: log.WithComponent(logger, "indicator"), current: domain.IndicatorOff}
}

// Set switches the appearance. Unknown appearances are rejected.
func (i *Indicator) Set(ctx context.Context, ind domain.Indicator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var v float64
	switch ind {
	case domain.IndicatorOn:
		v = 1
	case domain.IndicatorOff:
	default:
		return fmt.Errorf("unknown indicator appearance %q", ind)
	}

	i.mu.Lock()
	prev := i.current
	i.current = ind
	i.metrics.Indicator.Set(v)
	i.mu.Unlock()

	if prev != ind {
		i.logger.Info(map[string]any{"indicator": string(ind)}, "Indicator changed")
	}
	return nil
}

// Current returns the appearance last set.
func (i *Indicator) Current() domain.Indicator {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.current
}
