package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ExecController runs the target as a child process via os/exec. Stop sends
// a termination signal and escalates to kill when the timeout elapses.
type ExecController struct {
	logger *slog.Logger
	args   []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	waitCh chan error
}

// NewExecController creates a controller that launches the target with the
// given extra arguments.
func NewExecController(logger *slog.Logger, args ...string) *ExecController {
	return &ExecController{
		logger: logger,
		args:   args,
	}
}

// NeedsStop reports whether a previously started process is still alive.
func (c *ExecController) NeedsStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}

	alive, err := process.PidExists(int32(c.cmd.Process.Pid))
	if err != nil {
		// When in doubt, stop: a stale lock is worse than a spurious signal.
		return true
	}
	return alive
}

// Start launches command with the configured arguments. The previous
// process handle, if any, is discarded; callers stop before starting.
func (c *ExecController) Start(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(command, c.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		waitCh <- err
		if err != nil {
			c.logger.Warn("target process exited", "command", command, "error", err)
		} else {
			c.logger.Debug("target process exited", "command", command)
		}
	}()

	c.mu.Lock()
	c.cmd = cmd
	c.waitCh = waitCh
	c.mu.Unlock()

	c.logger.Info("target process started", "command", command, "pid", cmd.Process.Pid)
	return nil
}

// Stop terminates the running process, waiting until it exits or the
// timeout elapses, then kills it outright.
func (c *ExecController) Stop(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	cmd := c.cmd
	waitCh := c.waitCh
	c.cmd = nil
	c.waitCh = nil
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	proc, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		// Already reaped.
		return nil
	}

	if err := proc.TerminateWithContext(ctx); err != nil {
		c.logger.Warn("terminate failed, killing target", "pid", cmd.Process.Pid, "error", err)
		return cmd.Process.Kill()
	}

	select {
	case <-waitCh:
		return nil
	case <-time.After(timeout):
		c.logger.Warn("target did not exit within timeout, killing", "pid", cmd.Process.Pid, "timeout", timeout)
		return cmd.Process.Kill()
	case <-ctx.Done():
		return cmd.Process.Kill()
	}
}
