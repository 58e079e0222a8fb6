package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syt1126/StarLink-Pro-app/internal/platesolve"
)

func (a *app) solveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve <image>",
		Short: "Plate-solve a star-field photo and point the mount at it",
		Long: `
Uploads the image to astrometry.net, waits for the solution (up to 20 polls
for a job id, then 30 polls for the result, 3 seconds apart) and prints the
field centre. When a mount address is configured the mount is pointed at it.
`,
		Args: cobra.ExactArgs(1),
		RunE: a.runSolve,
	}
}

func (a *app) runSolve(cmd *cobra.Command, args []string) error {
	if a.cfg.Astrometry.APIKey == "" {
		return errors.New("no astrometry.net API key: set STARLINK_ASTROMETRY_API_KEY or MY_API_KEY")
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	run := a.solver(a.observers(ctx, true)).Start(ctx, platesolve.Request{
		Image:    image,
		FileName: filepath.Base(args[0]),
		MountIP:  a.cfg.Mount.IP,
	})

	out := cmd.OutOrStdout()
	printed := followProgress(out, run)

	res := run.Result()
	printEvents(out, run.Progress().Events()[printed:])

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return res.Err
}

// followProgress prints events as they are logged until the run finishes
// and returns how many it printed.
func followProgress(w io.Writer, run *platesolve.Run) int {
	progress := run.Progress()
	printed := 0
	for {
		changed := progress.Changed()
		events := progress.Events()
		printEvents(w, events[printed:])
		printed = len(events)

		select {
		case <-changed:
		case <-run.Done():
			return printed
		}
	}
}

func printEvents(w io.Writer, events []platesolve.Event) {
	for _, e := range events {
		fmt.Fprintf(w, "[%-23s] %s\n", e.Phase, e.Message)
	}
}
