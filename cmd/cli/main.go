package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/buildmeup/internal/app"
	"github.com/specialistvlad/buildmeup/internal/cli"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
)

// main is the entrypoint for the bmu application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(orchestrator.ExitFatal)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. The report goes to outW, logs and help text to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, errW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Registration mistakes panic; report them like any other fatal error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked | %v", r)
		}
	}()

	bmu, err := app.NewApp(ctx, outW, errW, appConfig)
	if err != nil {
		return err
	}
	res, err := bmu.Run(ctx)
	if res == nil {
		return err
	}
	// An interrupted run still has a result; its first failure decides.
	if err != nil || !res.Success {
		exitErr := &cli.ExitError{Code: res.ExitCode()}
		if exitErr.Code == orchestrator.ExitOK {
			exitErr.Code = orchestrator.ExitFatal
		}
		if err != nil {
			exitErr.Message = err.Error()
		}
		return exitErr
	}
	return nil
}
