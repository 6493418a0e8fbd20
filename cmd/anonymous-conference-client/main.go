// Command anonymous-conference-client runs the cryptographic conference
// client engine against a relay server, driving it with the headless
// reference frontend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/L20L021902/anonymous-conference-client/internal/frontend"
	"github.com/L20L021902/anonymous-conference-client/internal/state"
)

func main() {
	app := &cli.App{
		Name:  "anonymous-conference-client",
		Usage: "anonymous ring-signed group chat over an untrusted relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "localhost:7667",
				Usage:   "address of the relay server",
			},
			&cli.StringFlag{
				Name:    "frontend",
				Aliases: []string{"f"},
				Value:   "headless",
				Usage:   "frontend to drive the client with (only \"headless\" is built in)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.String("frontend") != "headless" {
		return errors.Errorf("unsupported frontend %q: only \"headless\" is built in", c.String("frontend"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fe := frontend.New(os.Stdin, os.Stdout)
	sm := state.New(c.String("server"), fe.Events, fe.Actions)

	fmt.Fprintf(os.Stdout, "connecting to %s...\n", c.String("server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sm.Run(gctx) })
	g.Go(func() error { return fe.Run(gctx) })

	if err := g.Wait(); err != nil && errors.Cause(err) != context.Canceled {
		return errors.Wrap(err, "client exited")
	}
	return nil
}
