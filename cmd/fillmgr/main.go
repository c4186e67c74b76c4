package main

import (
	"context"
	"os"

	"github.com/fillmgr/fillmgr/internal/cli"
	"github.com/fillmgr/fillmgr/internal/config"
)

func main() {
	cfg := config.DefaultConfig()
	r := cli.NewRunner(cfg.SocketPath, os.Stdout, os.Stderr)
	os.Exit(r.Run(context.Background(), os.Args[1:]))
}
