package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syt1126/StarLink-Pro-app/internal/pointing"
)

func (a *app) mountSimCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "mount-sim",
		Short: "Receive and print pointing commands like a mount would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			l, err := pointing.Listen(listen, a.logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "listening on %s\n", l.Addr())
			return l.Serve(ctx, func(c pointing.Command) {
				fmt.Fprintf(out, "%s  RA %.4f°  Dec %+.4f°\n", c.From, c.Target.RA, c.Target.Dec)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", fmt.Sprintf(":%d", pointing.DefaultPort), "UDP address to listen on")
	return cmd
}
