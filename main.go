package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/HWyn2020/flash-arbitrage-ethereum/cmd"
	"github.com/HWyn2020/flash-arbitrage-ethereum/utils"
)

func main() {
	defer utils.CleanupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
