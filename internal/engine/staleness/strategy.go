package staleness

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Strategy names accepted by FromStrategy.
const (
	StrategyTimestamp = "timestamp"
	StrategyTTL       = "ttl"
	StrategyAlways    = "always"
	StrategyNever     = "never"
)

// FromStrategy builds the oracle named by strategy. An empty name selects the
// timestamp oracle; ttl is only used by the ttl strategy.
func FromStrategy(strategy string, ttl time.Duration, logger zerolog.Logger) (Oracle, error) {
	switch strategy {
	case "", StrategyTimestamp:
		return NewTimestamp(logger), nil
	case StrategyTTL:
		return NewTTL(ttl, logger), nil
	case StrategyAlways:
		return Always, nil
	case StrategyNever:
		return Never, nil
	default:
		return nil, fmt.Errorf("unknown staleness strategy %q (want %s, %s, %s or %s)",
			strategy, StrategyTimestamp, StrategyTTL, StrategyAlways, StrategyNever)
	}
}

// MarkerFiles lists the marker file names any built-in strategy may write.
func MarkerFiles() []string {
	return []string{MarkerFileName, TTLMarkerFileName}
}
