// Command depthmesh converts images into DXF point sets and STL/OBJ meshes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/df07/go-depthmesh/pkg/cli"
)

// Set at build time via -ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := cli.NewRootCommand()
	rootCmd.SetContext(ctx)
	code := cli.Execute(rootCmd)
	stop()
	os.Exit(code)
}
