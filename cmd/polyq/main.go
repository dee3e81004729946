// Command polyq plans and applies schema changes across the configured
// backends and compiles or runs backend-neutral queries.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shipq/polyq/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		cli.Fatal(err.Error())
	}
}
