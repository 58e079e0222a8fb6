package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syt1126/StarLink-Pro-app/internal/geo"
)

func (a *app) locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Look up the observer location from the public IP address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			obs, err := geo.NewLocator(a.cfg.Locate.URL, a.cfg.Locate.Timeout, a.logger).Locate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "latitude %.4f  longitude %.4f\n", obs.Latitude, obs.Longitude)
			return nil
		},
	}
}
