package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// installSignalHandlers attaches handlers for the terminate and
// interrupt signals; each handler simply triggers shutdown (spec §4.7).
// On platforms where signal.Notify is a no-op (none of note for this
// target, but the source's graceful-degradation wording is preserved
// here via Notify's own documented behavior), this silently does
// nothing rather than failing construction.
func installSignalHandlers(sv *Supervisor) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			sv.logger.Info("supervisor.signal_received", "signal", sig.String())
			sv.TriggerShutdown("signal:" + sig.String())
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
