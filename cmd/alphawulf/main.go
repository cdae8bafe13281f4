// Command alphawulf runs the AlphaWulf Hub progression backend: the Mini App
// HTTP API, the companion Telegram bot and the maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alphawulf/alphawulf-hub/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
