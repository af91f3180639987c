package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/perbu/labrag/pkg/pipeline"
)

// Exit codes
const (
	exitOK        = 0
	exitFailure   = 1
	exitExhausted = 2
)

func main() {
	// Load .env file if it exists (for API key)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, a := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.finish(stderr)

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrExhausted):
		return exitExhausted
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
}
