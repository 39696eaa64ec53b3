package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"

	"github.com/illarion/cipherstore/cmd"
)

func main() {
	// Wipe enclaves if we are interrupted mid-operation
	memguard.CatchInterrupt()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		memguard.SafeExit(1)
	}
	memguard.Purge()
}
