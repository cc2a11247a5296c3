package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/torqfleet/botfleet/internal/models"
)

// commandPollInterval is how often the command-processor loop checks for
// a queued commands file.
const commandPollInterval = 2 * time.Second

// writeSnapshot serializes the current fleet state to statePath using
// truncate-then-write semantics: write to a temp file in the same
// directory, fsync, then atomically rename over the target so readers
// never observe a partial write. The file is missing only until the
// first snapshot is written; ReadSnapshot reads that case as an empty
// snapshot.
func (c *Controller) writeSnapshot() {
	snap := models.FleetSnapshot{
		GlobalPaused: c.state.IsGloballyPaused(),
		Bots:         c.AllBotStatus(),
	}
	if err := writeSnapshotFile(c.statePath, snap); err != nil {
		c.logger.Printf("fleet: write state snapshot: %v", err)
	}
}

func writeSnapshotFile(path string, snap models.FleetSnapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".bots_state-*.json")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadSnapshot reads and parses the state snapshot file. Consumers
// (dashboards, CLI shells) may poll this; a missing file reads as an
// empty, not-paused snapshot since the controller may not have written
// one yet.
func ReadSnapshot(path string) (models.FleetSnapshot, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied IPC file location
	if errors.Is(err, os.ErrNotExist) {
		return models.FleetSnapshot{}, nil
	}
	if err != nil {
		return models.FleetSnapshot{}, err
	}
	if len(data) == 0 {
		return models.FleetSnapshot{}, nil
	}
	var snap models.FleetSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.FleetSnapshot{}, err
	}
	return snap, nil
}

// runCommandLoop polls cmdPath every commandPollInterval, consuming
// queued commands by atomic take (read then delete) and dispatching each
// to the matching Controller operation. A malformed command file is
// deleted with a warning rather than retried forever.
func (c *Controller) runCommandLoop(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.processQueuedCommands()
		}
	}
}

// processQueuedCommands performs one atomic-take cycle: read the command
// file, delete it immediately, then dispatch whatever was read. Deleting
// before dispatch means a crash mid-dispatch never replays a command
// twice.
func (c *Controller) processQueuedCommands() {
	cmds, err := takeCommands(c.cmdPath)
	if err != nil {
		c.logger.Printf("fleet: malformed command queue, discarding: %v", err)
		return
	}
	for _, cmd := range cmds {
		c.dispatchCommand(cmd)
	}
}

func takeCommands(path string) ([]models.Command, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied IPC file location
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	if len(data) == 0 {
		return nil, nil
	}

	var cmds []models.Command
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

func (c *Controller) dispatchCommand(cmd models.Command) {
	c.logger.Printf("fleet: dispatching command %s (bot=%q correlation_id=%s)", cmd.Action, cmd.BotID, cmd.CorrelationID)
	switch cmd.Action {
	case models.CommandPause:
		c.PauseBot(cmd.BotID)
	case models.CommandResume:
		c.ResumeBot(cmd.BotID)
	case models.CommandStop:
		c.StopBot(cmd.BotID)
	case models.CommandRestart:
		c.RestartBot(cmd.BotID)
	case models.CommandPauseAll:
		for _, id := range c.ListBots() {
			c.PauseBot(id)
		}
	case models.CommandResumeAll:
		for _, id := range c.ListBots() {
			c.ResumeBot(id)
		}
	default:
		c.logger.Printf("fleet: unknown command action %q", cmd.Action)
	}
}

// QueueCommand appends cmd to the command queue file at path, assigning a
// correlation id when cmd has none, so the command goes through the same
// atomic-take path as one written by an external IPC writer. The
// interactive shell does not use it; it calls Controller methods
// directly.
func QueueCommand(path string, cmd models.Command) error {
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.NewString()
	}

	var existing []models.Command
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 { // #nosec G304
		_ = json.Unmarshal(data, &existing)
	}
	existing = append(existing, cmd)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".bots_commands-*.json")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)

	if err := json.NewEncoder(f).Encode(existing); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
