package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/syt1126/StarLink-Pro-app/internal/ephemeris"
	"github.com/syt1126/StarLink-Pro-app/internal/tracking"
)

func (a *app) trackCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "track [sun|moon|mars]",
		Short: "Show a body's position and keep the mount pointed at it",
		Long: `
Without a body, prints the current position of every supported body.

With a body and a mount address (--mount-ip or STARLINK_MOUNT_IP), sends the
body's coordinates to the mount every --interval until interrupted, or once
with --once. Without a mount address the position is printed only.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrack(cmd, args, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "send a single command and exit")
	cmd.Flags().Duration("interval", 2*time.Second, "time between pointing commands")
	_ = a.v.BindPFlag("mount.track_interval", cmd.Flags().Lookup("interval"))
	return cmd
}

func (a *app) runTrack(cmd *cobra.Command, args []string, once bool) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	// Following the mount runs until interrupted; everything else is a
	// single reading that should use the looked-up location.
	follow := len(args) == 1 && a.cfg.Mount.IP != "" && !once
	tracker := a.tracker(a.observers(ctx, follow))
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		readings, err := tracker.LocateAll()
		if err != nil {
			return err
		}
		for _, r := range readings {
			printReading(out, r)
		}
		return nil
	}

	body, err := ephemeris.ParseBody(args[0])
	if err != nil {
		return err
	}

	ip := a.cfg.Mount.IP
	if ip == "" {
		r, err := tracker.Locate(body)
		if err != nil {
			return err
		}
		printReading(out, r)
		return nil
	}

	if once {
		r, err := tracker.Point(ctx, ip, body)
		if err != nil {
			return err
		}
		printReading(out, r)
		return nil
	}

	return tracker.Follow(ctx, ip, body, a.cfg.Mount.TrackInterval, func(r tracking.Reading, err error) {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", body, err)
			return
		}
		printReading(out, r)
	})
}

func printReading(w io.Writer, r tracking.Reading) {
	horizon := "below horizon"
	if r.AboveHorizon() {
		horizon = "above horizon"
	}
	fmt.Fprintf(w, "%-4s  RA %8.4f°  Dec %+8.4f°  Az %8.4f°  Alt %+8.4f°  %s  (%s)\n",
		r.Body, r.Equatorial.RA, r.Equatorial.Dec,
		r.Horizontal.Azimuth, r.Horizontal.Altitude,
		horizon, r.At.Format(time.RFC3339))
}
