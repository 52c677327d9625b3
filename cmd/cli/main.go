// Command decksync keeps a local study collection in step with the remote deck catalog and pushes
// study progress back.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/decksync/internal/errs"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitAuth  = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	err := newRootCommand(opts).ExecuteContext(ctx)
	if terr := opts.teardown(); err == nil {
		err = terr
	}
	os.Exit(exitCode(os.Stderr, err))
}

// exitCode prints err with its hint and maps it to a process exit code.
func exitCode(w io.Writer, err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return exitOK
	}
	fmt.Fprintf(w, "error: %s\n", errs.Message(err))
	if h := errs.Hint(err); h != "" {
		fmt.Fprintf(w, "hint: %s\n", h)
	}
	if errs.KindOf(err) == errs.KindAuth || errors.Is(err, errs.ErrNotAuthenticated) {
		return exitAuth
	}
	return exitError
}
