// Package controller defines the narrow contract binwatch uses to stop and
// start the target process, plus an os/exec implementation for running the
// tool standalone. The reload core never inspects process internals beyond
// this contract.
package controller

import (
	"context"
	"time"
)

// Controller is the host-supplied handle on the target process.
type Controller interface {
	// NeedsStop reports whether the target currently holds a process that
	// must be stopped before its executable can be replaced. Pure query.
	NeedsStop() bool

	// Stop requests the target process to stop, waiting until it exits or
	// the timeout elapses. Returning is no guarantee the OS has finished
	// releasing the executable's file lock.
	Stop(ctx context.Context, timeout time.Duration) error

	// Start launches the target using the effective command. Launch
	// failures surface as an error.
	Start(ctx context.Context, command string) error
}
