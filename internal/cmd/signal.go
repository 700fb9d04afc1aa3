package cmd

import (
	"os"
	"os/signal"

	"github.com/tilecached/tilecached/internal/job"
)

// cancelOnInterrupt installs a Ctrl-C handler for the duration of a bulk
// job: the first SIGINT requests cooperative cancellation on engine
// (4.H's cancel flag, checked by the enumeration loop and the worker
// pool's task-dispatch loop before launching new work); a second SIGINT
// falls through to the process's default terminate behavior. Call the
// returned func once the job has finished to stop watching.
func cancelOnInterrupt(engine *job.Engine) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			logger.Warn("job: interrupt received, cancelling", "state", engine.State())
			engine.Cancel()
			signal.Stop(sigCh)
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
