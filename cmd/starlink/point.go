package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/pointing"
)

func (a *app) pointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "point <ra> <dec>",
		Short: "Send equatorial coordinates in degrees to the mount",
		Example: `  starlink point 83.8221 -5.3911 --mount-ip 192.168.68.107
  starlink point -- 101.2875 -16.7161`,
		Args: cobra.ExactArgs(2),
		RunE: a.runPoint,
	}
}

func (a *app) runPoint(cmd *cobra.Command, args []string) error {
	eq, err := pointing.ParseCoordinate(args[0], args[1])
	if err != nil {
		return err
	}
	eq.RA = astro.Normalize360(eq.RA)
	if !eq.Valid() {
		return fmt.Errorf("declination %v outside [-90, 90]", eq.Dec)
	}
	if a.cfg.Mount.IP == "" {
		return errors.New("no mount address: pass --mount-ip or set STARLINK_MOUNT_IP")
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	h, err := a.tracker(a.observers(ctx, false)).PointAt(ctx, a.cfg.Mount.IP, eq)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %q to %s:%d  (Az %.4f°  Alt %+.4f°)\n",
		pointing.Encode(eq), a.cfg.Mount.IP, a.cfg.Mount.Port, h.Azimuth, h.Altitude)
	return nil
}
