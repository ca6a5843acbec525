// Package dispatch routes automation commands to the session they target,
// opening an ambient session first when none is live.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/automation"
	"github.com/shehryarbajwa/hypercart/internal/automation/netsafe"
	"github.com/shehryarbajwa/hypercart/internal/engine"
	"github.com/shehryarbajwa/hypercart/internal/session"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// DefaultSessionID is used when a command names no session
const DefaultSessionID = "netsafe"

// BootstrapURL is where a lazily created session starts
const BootstrapURL = netsafe.EntryURL

// Sessions is the part of the orchestrator the dispatcher drives
type Sessions interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*session.Session, error)
	Runner(id string) (session.Runner, bool)
	CloseSession(id string) error
}

// Logger receives the user-facing log lines
type Logger interface {
	Log(sessionID, msg string)
}

// Dispatcher forwards commands to session runners
type Dispatcher struct {
	sessions Sessions
	bus      Logger
	clock    automation.Clock
	settle   time.Duration
	logger   *zap.Logger
}

// New creates a dispatcher. settle is the wait between lazily opening a
// session and handing it the command.
func New(sessions Sessions, bus Logger, clock automation.Clock, settle time.Duration, logger *zap.Logger) *Dispatcher {
	if clock == nil {
		clock = automation.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sessions: sessions,
		bus:      bus,
		clock:    clock,
		settle:   settle,
		logger:   logger,
	}
}

// Run forwards command to sessionID's runner, creating the session against
// BootstrapURL when it is not live
func (d *Dispatcher) Run(ctx context.Context, sessionID string, command models.Command, data json.RawMessage) error {
	if !command.Valid() {
		return fmt.Errorf("%w: %q", engine.ErrUnknownCommand, command)
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	runner, ok := d.sessions.Runner(sessionID)
	if !ok {
		d.logger.Info("Opening session for command",
			zap.String("session_id", sessionID),
			zap.String("command", string(command)))

		if _, err := d.sessions.CreateSession(ctx, models.CreateSessionRequest{
			ID:         sessionID,
			URL:        BootstrapURL,
			Background: true,
		}); err != nil {
			return fmt.Errorf("failed to open session %s: %w", sessionID, err)
		}
		if err := d.clock.Sleep(ctx, d.settle); err != nil {
			return err
		}
		if runner, ok = d.sessions.Runner(sessionID); !ok {
			return fmt.Errorf("session %s closed before %s could start: %w", sessionID, command, session.ErrNotFound)
		}
	}

	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return runner.Run(command, data)
}

// Stop ends whatever sessionID is running by closing the session
func (d *Dispatcher) Stop(sessionID string) error {
	if err := d.sessions.CloseSession(sessionID); err != nil {
		return err
	}
	d.logger.Info("🛑 Automation stopped", zap.String("session_id", sessionID))
	if d.bus != nil {
		d.bus.Log(sessionID, "🛑 Process Stopped by User")
	}
	return nil
}
