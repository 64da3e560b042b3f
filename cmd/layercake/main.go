package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"layercake.run/cmd/layercake/deps"
)

const (
	// ReturnCodeSuccess is passed to os.Exit() when no error is reported.
	ReturnCodeSuccess = 0
	// ReturnCodeError is passed to os.Exit() if a command reports an error.
	ReturnCodeError = 1
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	code := run(ctx)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context) int {
	container, err := deps.Build()
	if err != nil {
		panic(err)
	}

	if err := container.Invoke(func(cmd *cobra.Command) error {
		return cmd.ExecuteContext(ctx)
	}); err != nil {
		return ReturnCodeError
	}

	return ReturnCodeSuccess
}
