package infra

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerInMemory as BADGER_DIR keeps counters in memory only.
const BadgerInMemory = ":memory:"

// OpenBadger opens the embedded store at cfg.BadgerDir.
func OpenBadger(cfg *Config, logger zerolog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.BadgerDir).WithLogger(badgerLogger{l: logger})
	if cfg.BadgerDir == BadgerInMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{l: logger})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Error().Msgf("badger: "+format, args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warn().Msgf("badger: "+format, args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Debug().Msgf("badger: "+format, args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Trace().Msgf("badger: "+format, args...) }
