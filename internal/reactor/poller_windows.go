//go:build windows

package reactor

// Windows has no poller backend (spec.md's reactor scenarios are
// Unix-socket based); Reactor.New reports this explicitly rather than
// silently degrading to a no-op.
func newPoller() (poller, error) {
	return nil, ErrUnsupportedPlatform
}
