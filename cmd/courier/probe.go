package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/seantiz/courier/internal/config"
	"github.com/seantiz/courier/internal/httpcall"
	"github.com/seantiz/courier/internal/invocation"
	"github.com/seantiz/courier/internal/tui"
)

func probeCmd() *cobra.Command {
	var (
		name     string
		delay    time.Duration
		simulate bool
		plain    bool
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "probe URL",
		Short: "Call a service once and show the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// The terminal belongs to the UI, so logs are dropped unless asked for.
			logOut := io.Discard
			if verbose {
				logOut = os.Stderr
			}

			headless := plain || !term.IsTerminal(os.Stdout.Fd())
			res, err := tui.Probe(cmd.Context(), tui.Config{
				Name:            name,
				Target:          args[0],
				Client:          httpcall.NewClient(cfg.CallTimeout),
				Delay:           delay,
				SimulateFailure: simulate,
				Headless:        headless,
				Output:          os.Stdout,
				Logger:          config.NewLogger(logOut, cfg.LogLevel),
			})
			if err != nil {
				return err
			}
			if headless {
				fmt.Fprint(os.Stdout, tui.Summary(res))
			}
			if res.State != invocation.Succeeded {
				return fmt.Errorf("probe %s: %s", res.Target, res.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Invocation name (defaults to the URL)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay before the call")
	cmd.Flags().BoolVar(&simulate, "simulate-failure", false, "Report the call as failed whatever the response")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the outcome without the interactive view")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Write logs to stderr")

	return cmd
}
