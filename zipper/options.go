package zipper

import (
	"log/slog"
	"runtime"
	"strconv"

	"github.com/klauspost/compress/flate"

	"github.com/osputil/osputil"
	"github.com/osputil/osputil/internal/metrics"
)

// Level selects the DEFLATE compression effort of an entry.
type Level int

// Compression levels. Any value from NoCompression to BestCompression is valid.
const (
	NoCompression      Level = flate.NoCompression
	BestSpeed          Level = flate.BestSpeed
	BestCompression    Level = flate.BestCompression
	DefaultCompression Level = flate.DefaultCompression
)

// Valid reports whether l is a supported compression level.
func (l Level) Valid() bool {
	return l == DefaultCompression || (l >= NoCompression && l <= BestCompression)
}

// String returns the level name used in configuration files.
func (l Level) String() string {
	switch l {
	case DefaultCompression:
		return "default"
	case BestSpeed:
		return "speed"
	case BestCompression:
		return "best"
	case NoCompression:
		return "none"
	}
	return "level-" + strconv.Itoa(int(l))
}

// ParseLevel parses "default", "speed", "best", "none" or a digit 0-9.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "default":
		return DefaultCompression, nil
	case "speed", "fastest":
		return BestSpeed, nil
	case "best", "smallest":
		return BestCompression, nil
	case "none", "store":
		return NoCompression, nil
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return Level(s[0] - '0'), nil
	}
	return 0, osputil.Errorf("parse level", "", osputil.ErrInvalidArgument, "unknown compression level %q", s)
}

type options struct {
	denied    []string
	log       *slog.Logger
	metrics   *metrics.Recorder
	overwrite bool
	workers   int
}

// Option configures a FileZipper or FileUnzipper.
type Option func(*options)

// WithDeniedPrefixes rejects archive, source and destination paths under
// any of the given directories with ErrIllegalAccess.
func WithDeniedPrefixes(prefixes ...string) Option {
	return func(o *options) {
		o.denied = append(o.denied, prefixes...)
	}
}

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records added and extracted entries on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithOverwrite sets the initial value of the overwrite flag.
func WithOverwrite(overwrite bool) Option {
	return func(o *options) {
		o.overwrite = overwrite
	}
}

// WithWorkers bounds the number of entries extracted concurrently.
// Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func newOptions(opts []Option) *options {
	o := &options{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	return o
}
