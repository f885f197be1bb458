package control

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/session"
)

// Result is the outcome of one control command, in the response format of
// the switch console this service replaces: "+OK ...", "-ERR ..." or
// "-USAGE: ...". Status carries the equivalent HTTP status code.
type Result struct {
	Text   string
	Status int
}

// Runner executes parsed control commands against the session manager
type Runner struct {
	manager  *session.Manager
	defaults config.DefaultsConfig
	audio    config.AudioConfig
}

// NewRunner creates a command runner
func NewRunner(manager *session.Manager, defaults config.DefaultsConfig, audio config.AudioConfig) *Runner {
	return &Runner{
		manager:  manager,
		defaults: defaults,
		audio:    audio,
	}
}

// Run parses and executes one command line
func (r *Runner) Run(line string) Result {
	cmd, err := Parse(line)
	if err != nil {
		return usageResult(err)
	}

	switch cmd.Action {
	case ActionStart:
		return r.start(cmd)
	case ActionStop:
		return r.stop(cmd)
	default:
		return usageResult(&UsageError{Reason: fmt.Sprintf("unknown action %q", cmd.Action)})
	}
}

// start activates transmission for the named session
func (r *Runner) start(cmd *Command) Result {
	_, err := r.manager.Start(cmd.SessionConfig(r.defaults, r.audio))
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActivated) {
			return Result{
				Text:   "-ERR Unicast already activated\n",
				Status: http.StatusConflict,
			}
		}
		// Socket setup failures each carry their own descriptive reason
		return Result{
			Text:   fmt.Sprintf("-ERR %v\n", err),
			Status: http.StatusBadGateway,
		}
	}

	return Result{
		Text:   "+OK Success\n",
		Status: http.StatusOK,
	}
}

// stop detaches transmission, idempotently
func (r *Runner) stop(cmd *Command) Result {
	active, err := r.manager.Stop(cmd.SessionID)
	if err != nil {
		return Result{
			Text:   fmt.Sprintf("-ERR %v\n", err),
			Status: http.StatusBadRequest,
		}
	}

	if !active {
		return Result{
			Text:   "+OK Not activated\n",
			Status: http.StatusOK,
		}
	}

	return Result{
		Text:   "+OK Success\n",
		Status: http.StatusOK,
	}
}

// usageResult maps a parse failure to a -USAGE response
func usageResult(err error) Result {
	var usage *UsageError
	if errors.As(err, &usage) {
		return Result{
			Text:   fmt.Sprintf("-USAGE: %s\n", Syntax),
			Status: http.StatusBadRequest,
		}
	}
	return Result{
		Text:   fmt.Sprintf("-ERR %v\n", err),
		Status: http.StatusBadRequest,
	}
}
