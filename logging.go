package coro

import (
	"os"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// loggerState holds the package-level structured logger. Mirrors the
// pattern used by the eventloop package in this workspace
// (eventloop/logging.go's package-level SetStructuredLogger/getGlobalLogger):
// a swappable, mutex-guarded global, defaulting to a quiet built-in
// implementation rather than requiring every embedder to wire one up.
var loggerState struct {
	sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

func init() {
	loggerState.logger = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelWarning),
	).Logger()
}

// SetLogger overrides the package-level structured logger used for
// scheduler diagnostics (processor lifecycle, panics, reactor errors).
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	loggerState.Lock()
	defer loggerState.Unlock()
	loggerState.logger = logger
}

func log() *logiface.Logger[logiface.Event] {
	loggerState.RLock()
	defer loggerState.RUnlock()
	return loggerState.logger
}

// diagLimiter throttles high-frequency, low-value diagnostic log lines (a
// processor parking, a steal miss) so a busy scheduler doesn't spam its log
// sink once per scheduling-loop iteration. Grounded on
// github.com/joeycumines/go-catrate's category rate limiter, used the same
// way elsewhere in this workspace to cap noisy per-category events.
var diagLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second: 5,
})

// logThrottled reports whether a diagnostic in the given category is allowed
// to be logged right now.
func logThrottled(category string) bool {
	_, ok := diagLimiter.Allow(category)
	return ok
}
