package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/auditagent/internal/core/capture"
	"github.com/colonyops/auditagent/internal/core/queue"
	"github.com/colonyops/auditagent/internal/core/styles"
	"github.com/colonyops/auditagent/pkg/iojson"
)

type QueueCmd struct {
	flags  *Flags
	format string
}

// NewQueueCmd creates a new queue command
func NewQueueCmd(flags *Flags) *QueueCmd {
	return &QueueCmd{flags: flags}
}

// Register adds the queue command to the application
func (cmd *QueueCmd) Register(app *cli.Command) *cli.Command {
	formatFlag := &cli.StringFlag{
		Name:        "format",
		Usage:       "output format (text, json)",
		Value:       "text",
		Destination: &cmd.format,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "queue",
		Usage: "Inspect the persisted upload queue",
		Description: `Reads the queue file in the scratch folder without modifying it.
Safe to run while the agent is running.`,
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List pending artifacts oldest first",
				UsageText: "auditagent queue ls [--format text|json]",
				Flags:     []cli.Flag{formatFlag},
				Action:    cmd.runLs,
			},
			{
				Name:      "stat",
				Usage:     "Summarize queue depth and scratch folder usage",
				UsageText: "auditagent queue stat [--format text|json]",
				Flags:     []cli.Flag{formatFlag},
				Action:    cmd.runStat,
			},
		},
	})
	return app
}

type queueEntry struct {
	Path       string `json:"path"`
	RetryCount int    `json:"retry_count"`
	Exists     bool   `json:"exists"`
}

func (cmd *QueueCmd) entries() ([]queueEntry, error) {
	items, err := queue.ReadSnapshot(cmd.flags.Config.QueueFile())
	if err != nil {
		return nil, err
	}

	entries := make([]queueEntry, 0, len(items))
	for _, it := range items {
		_, statErr := os.Stat(it.Path)
		entries = append(entries, queueEntry{Path: it.Path, RetryCount: it.RetryCount, Exists: statErr == nil})
	}
	return entries, nil
}

func (cmd *QueueCmd) runLs(_ context.Context, c *cli.Command) error {
	entries, err := cmd.entries()
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.format == "json" {
		return iojson.WriteWith(out, os.Stderr, entries)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "Queue is empty")
		return nil
	}

	printQueueTable(out, entries)
	return nil
}

func printQueueTable(out io.Writer, entries []queueEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, styles.TableHeaderStyle.Render("RETRIES")+"\t"+styles.TableHeaderStyle.Render("PATH"))

	for _, e := range entries {
		path := e.Path
		if !e.Exists {
			path = styles.TextWarningStyle.Render(path + " (missing)")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\n", e.RetryCount, path)
	}

	_ = w.Flush()
}

type queueStat struct {
	Depth        int   `json:"depth"`
	Missing      int   `json:"missing"`
	Retrying     int   `json:"retrying"`
	ScratchBytes int64 `json:"scratch_bytes"`
}

func (cmd *QueueCmd) runStat(_ context.Context, c *cli.Command) error {
	entries, err := cmd.entries()
	if err != nil {
		return err
	}

	size, err := capture.FolderSize(cmd.flags.Config.Queue.Dir)
	if err != nil {
		return fmt.Errorf("scratch folder size: %w", err)
	}

	st := queueStat{Depth: len(entries), ScratchBytes: size}
	for _, e := range entries {
		if !e.Exists {
			st.Missing++
		}
		if e.RetryCount > 0 {
			st.Retrying++
		}
	}

	out := c.Root().Writer
	if cmd.format == "json" {
		return iojson.WriteWith(out, os.Stderr, st)
	}

	label := styles.TextMutedStyle.Render
	_, _ = fmt.Fprintf(out, "%s %d\n", label("depth:   "), st.Depth)
	_, _ = fmt.Fprintf(out, "%s %d\n", label("retrying:"), st.Retrying)
	_, _ = fmt.Fprintf(out, "%s %d\n", label("missing: "), st.Missing)
	_, _ = fmt.Fprintf(out, "%s %.2f MB\n", label("scratch: "), float64(st.ScratchBytes)/(1024*1024))
	return nil
}
