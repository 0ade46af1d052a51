package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/auditagent/internal/core/styles"
	"github.com/colonyops/auditagent/pkg/iojson"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "auditagent config validate [options]",
				Description: "Validates the configuration file, the queue directory and provider executables.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

type fieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (cmd *ConfigValidateCmd) run(_ context.Context, c *cli.Command) error {
	problems := validationProblems(cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath))

	if cmd.format == "json" {
		out := struct {
			Valid  bool           `json:"valid"`
			Errors []fieldProblem `json:"errors,omitempty"`
		}{Valid: len(problems) == 0, Errors: problems}
		if err := iojson.WriteWith(c.Root().Writer, os.Stderr, out); err != nil {
			return err
		}
	} else {
		for _, p := range problems {
			_, _ = fmt.Fprintf(os.Stderr, "%s %s: %s\n", styles.TextErrorStyle.Render("✘"), p.Field, p.Message)
		}
		if len(problems) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, styles.TextSuccessStyle.Render("✔ Configuration is valid"))
		}
	}

	if len(problems) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func validationProblems(err error) []fieldProblem {
	if err == nil {
		return nil
	}

	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return []fieldProblem{{Field: "config", Message: err.Error()}}
	}

	problems := make([]fieldProblem, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fieldProblem{Field: fe.Field, Message: fe.Err.Error()})
	}
	return problems
}
