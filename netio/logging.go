package netio

import (
	"os"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// loggerState is package netio's own package-level structured logger,
// mirroring package coro's logging.go (same swappable-global pattern);
// kept separate rather than imported from coro so netio stays a plain
// consumer of coro's public surface, not a second door into its internals.
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

// SetLogger overrides the package-level structured logger used for netio
// diagnostics (accept-loop retries).
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

// acceptRetryLimiter throttles "accept loop retrying after transient error"
// diagnostics the same way coro's diagLimiter caps scheduling-loop noise.
var acceptRetryLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second: 5,
})

func logThrottled(category string) bool {
	_, ok := acceptRetryLimiter.Allow(category)
	return ok
}
