// Command ytcatalog keeps a catalog of YouTube videos in a JSON file.
//
// Without arguments it starts the interactive menu. The subcommands run a
// single catalog operation and exit:
//
//	ytcatalog list
//	ytcatalog add https://youtu.be/dQw4w9WgXcQ
//	ytcatalog update 2 https://www.youtube.com/watch?v=...
//	ytcatalog delete 3
//	ytcatalog download 1 --dir ~/Videos
//	ytcatalog import "https://www.youtube.com/playlist?list=..."
//	ytcatalog config
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode follows the shell convention of 128+SIGINT for interrupts.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
