// Package main implements the jsflow CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/jsflow/cmd/jsflow/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := commands.NewRootCmd(commands.BuildInfo{Version: version, BuildTime: buildTime})
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, commands.ErrIssuesFound) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
