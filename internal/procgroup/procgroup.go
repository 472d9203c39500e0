// Package procgroup runs subprocesses in their own process group so that
// cancelling a command also stops any children it spawned (yt-dlp hands work
// to ffmpeg, for example).
package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// DefaultWaitDelay is how long a cancelled command may take to exit before
// its output pipes are closed forcibly.
const DefaultWaitDelay = 5 * time.Second

// Bind configures cmd, which must have been created with exec.CommandContext,
// to start in a new process group and to kill that whole group when its
// context is done.
func Bind(cmd *exec.Cmd, waitDelay time.Duration) {
	Set(cmd)
	cmd.Cancel = func() error {
		return Kill(cmd, syscall.SIGKILL)
	}
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}
	cmd.WaitDelay = waitDelay
}
