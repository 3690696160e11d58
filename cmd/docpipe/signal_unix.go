//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop a running command, letting serve drain its
// connections and batch commands keep finished output.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
