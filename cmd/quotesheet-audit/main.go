package main

import (
	"context"
	"fmt"
	"os"

	"quotesheet/internal/cli"
)

func main() {
	ctx, stop := cli.SignalContext(context.Background())
	err := cli.NewAuditCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
