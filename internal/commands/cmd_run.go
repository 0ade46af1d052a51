package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/auditagent/internal/agent"
	"github.com/colonyops/auditagent/internal/core/logging"
	"github.com/colonyops/auditagent/internal/debugserver"
	"github.com/colonyops/auditagent/pkg/executil"
)

type RunCmd struct {
	flags     *Flags
	debugAddr string
}

// NewRunCmd creates a new run command
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Register adds the run command to the application
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Start the monitoring agent",
		UsageText: "auditagent run",
		Description: `Starts capturing, queueing and delivering artifacts to the collector.

The agent runs until it receives SIGINT or SIGTERM, then stops capture,
lets the in-flight delivery finish or abandon cleanly, and closes the
acknowledgment channel. Queued artifacts survive restarts.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "debug-addr",
				Usage:       "serve pprof and /healthz on this address (e.g. 127.0.0.1:6060)",
				Sources:     cli.EnvVars("AUDITAGENT_DEBUG_ADDR"),
				Destination: &cmd.debugAddr,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *RunCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	providers, err := agent.ExecProviders(cfg, &executil.RealExecutor{})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Server.RequestTimeout}

	a, err := agent.New(cfg, providers, client)
	if err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.debugAddr != "" {
		srv := debugserver.New(cmd.debugAddr, a.Health, logging.Component("debug"))
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("config", cmd.flags.ConfigPath).Msg("starting agent")
	return a.Run(ctx)
}
