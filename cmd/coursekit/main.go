package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"coursekit/internal/media"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, describeError(err))
		}
		os.Exit(1)
	}
}

// describeError prefixes err with its failure class when it has one.
func describeError(err error) string {
	switch kind := media.ErrorKind(err); kind {
	case "", "internal":
		return err.Error()
	default:
		return fmt.Sprintf("%s: %v", kind, err)
	}
}
