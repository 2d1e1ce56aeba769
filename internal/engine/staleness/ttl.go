package staleness

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// TTL configuration constants and defaults.
const (
	// DefaultTTL is the default refresh interval (1 hour).
	DefaultTTL = time.Hour

	// MinTTLSeconds is the minimum allowed TTL (1 minute).
	MinTTLSeconds = 60

	// MaxTTLSeconds is the maximum allowed TTL (7 days).
	MaxTTLSeconds = 604800

	// TTLMarkerFileName holds the time of the last refresh for the TTL strategy.
	TTLMarkerFileName = "last-refresh.txt"

	// minutesPerHour is used for duration formatting calculations.
	minutesPerHour = 60

	// hoursPerDay is used for duration formatting calculations.
	hoursPerDay = 24

	// EnvTTL is the environment variable for overriding the TTL.
	EnvTTL = "CONTENTLOADER_CACHE_TTL"
)

// TTL validation errors.
var (
	ErrInvalidTTL = fmt.Errorf("TTL must be between %d and %d seconds", MinTTLSeconds, MaxTTLSeconds)
)

// TTL treats the whole storage root as stale once MaxAge has passed since the
// last refresh. It never queries the content API.
type TTL struct {
	MaxAge time.Duration

	logger zerolog.Logger
	now    func() time.Time
}

// NewTTL creates a TTL oracle. A non-positive maxAge uses DefaultTTL.
func NewTTL(maxAge time.Duration, logger zerolog.Logger) *TTL {
	if maxAge <= 0 {
		maxAge = DefaultTTL
	}
	return &TTL{
		MaxAge: maxAge,
		logger: logger.With().Str("component", "staleness").Logger(),
		now:    time.Now,
	}
}

// IsStale implements Oracle.
func (t *TTL) IsStale(_ context.Context, _ Source, storageRoot string) (bool, error) {
	marker := NewNamedMarker(storageRoot, TTLMarkerFileName)
	now := t.now()

	stale := true
	if value, ok, err := marker.Load(); err == nil && ok {
		if last, parseErr := time.Parse(time.RFC3339, value); parseErr == nil {
			stale = now.Sub(last) > t.MaxAge
		}
	}

	if stale {
		if err := marker.Store(now.UTC().Format(time.RFC3339)); err != nil {
			t.logger.Warn().Err(err).Str("path", marker.Path()).Msg("could not persist refresh time")
		}
	}
	t.logger.Debug().
		Str("storage_root", storageRoot).
		Str("ttl", FormatDuration(t.MaxAge)).
		Bool("stale", stale).
		Msg("checked cache age")
	return stale, nil
}

// GetTTLFromEnv reads the TTL from the environment or returns fallback.
// Invalid values are ignored.
func GetTTLFromEnv(fallback time.Duration) time.Duration {
	envVal := os.Getenv(EnvTTL)
	if envVal == "" {
		return fallback
	}
	seconds, err := ParseTTL(envVal)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// FormatDuration formats a duration in a human-readable way.
// Examples: "1h", "30m", "5m30s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < hoursPerDay*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}

// ParseTTL parses a TTL string in various formats:
// - Integer seconds: "3600".
// - Duration string: "1h", "30m", "1h30m".
func ParseTTL(s string) (int, error) {
	// Try parsing as integer seconds first
	if seconds, err := strconv.Atoi(s); err == nil {
		if seconds < MinTTLSeconds || seconds > MaxTTLSeconds {
			return 0, fmt.Errorf("%w: got %d", ErrInvalidTTL, seconds)
		}
		return seconds, nil
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL format: %w", err)
	}

	seconds := int(duration.Seconds())
	if seconds < MinTTLSeconds || seconds > MaxTTLSeconds {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidTTL, seconds)
	}

	return seconds, nil
}
