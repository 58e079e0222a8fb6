package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/syt1126/StarLink-Pro-app/internal/clock"
	"github.com/syt1126/StarLink-Pro-app/internal/config"
	"github.com/syt1126/StarLink-Pro-app/internal/geo"
	"github.com/syt1126/StarLink-Pro-app/internal/logging"
	"github.com/syt1126/StarLink-Pro-app/internal/platesolve"
	"github.com/syt1126/StarLink-Pro-app/internal/pointing"
	"github.com/syt1126/StarLink-Pro-app/internal/tracking"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// app carries the loaded configuration to every subcommand.
type app struct {
	v          *viper.Viper
	configFile string

	cfg    config.Config
	logger *slog.Logger

	// observerPinned is set when the location was given explicitly, which
	// disables the IP lookup.
	observerPinned bool
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "starlink",
		Short: "Point a telescope mount at the Sun, Moon, Mars or a plate-solved star field",
		Long: `
starlink computes where the Sun, Moon and Mars are for an observer, sends
"<ra>,<dec>" pointing commands to a mount over UDP, and plate-solves star-field
photos with nova.astrometry.net.

Settings come from defaults, an optional --config file (toml, yaml, json or
.env) and STARLINK_* environment variables, e.g.

  STARLINK_MOUNT_IP=192.168.68.107
  STARLINK_ASTROMETRY_API_KEY=...   (MY_API_KEY is also accepted)
`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (toml, yaml, json or .env)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json or text")
	pf.Float64("lat", transform.DefaultLatitude, "observer latitude in degrees")
	pf.Float64("lon", transform.DefaultLongitude, "observer longitude in degrees, east positive")
	pf.String("mount-ip", "", "mount address")
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = a.v.BindPFlag("observer.latitude", pf.Lookup("lat"))
	_ = a.v.BindPFlag("observer.longitude", pf.Lookup("lon"))
	_ = a.v.BindPFlag("mount.ip", pf.Lookup("mount-ip"))

	root.AddCommand(
		a.serveCmd(),
		a.trackCmd(),
		a.pointCmd(),
		a.solveCmd(),
		a.locateCmd(),
		a.mountSimCmd(),
	)
	return root
}

// load reads the config file and environment and builds the logger. The
// server logs to stdout; the one-shot commands keep stdout for results.
func (a *app) load(cmd *cobra.Command, args []string) error {
	if err := config.ReadFile(a.v, a.configFile); err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	if cmd.Name() == "serve" {
		out = cmd.OutOrStdout()
	}
	boot := logging.NewWriter(out, logging.Config{
		Level:  a.v.GetString("log.level"),
		Format: a.v.GetString("log.format"),
	})

	cfg, err := config.Load(a.v, boot)
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewWriter(out, cfg.Log)
	a.observerPinned = observerPinned(cmd, a.v)
	return nil
}

func observerPinned(cmd *cobra.Command, v *viper.Viper) bool {
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		return true
	}
	if v.InConfig("observer.latitude") || v.InConfig("observer.longitude") {
		return true
	}
	_, lat := os.LookupEnv(config.EnvPrefix + "_OBSERVER_LATITUDE")
	_, lon := os.LookupEnv(config.EnvPrefix + "_OBSERVER_LONGITUDE")
	return lat || lon
}

// observers returns the observer store seeded from configuration. Unless the
// location was configured explicitly it is refreshed from the location
// provider: in the background for long-running commands, which start on the
// seeded location, and inline for one-shot computations.
func (a *app) observers(ctx context.Context, background bool) *transform.ObserverStore {
	store := transform.NewObserverStore(a.cfg.Observer)
	if !a.cfg.Locate.Enabled || a.observerPinned {
		return store
	}
	locator := geo.NewLocator(a.cfg.Locate.URL, a.cfg.Locate.Timeout, a.logger)
	if background {
		geo.RefreshInBackground(ctx, locator, store, a.logger)
		return store
	}
	geo.Refresh(ctx, locator, store, a.logger)
	return store
}

func (a *app) transmitter() *pointing.Transmitter {
	return pointing.NewTransmitter(a.cfg.Mount.Pointing(), a.logger)
}

func (a *app) tracker(store *transform.ObserverStore) *tracking.Tracker {
	return tracking.New(store, clock.Real(), a.transmitter(), a.logger)
}

func (a *app) solver(store *transform.ObserverStore) *platesolve.Solver {
	client := platesolve.NewClient(a.cfg.Astrometry.BaseURL, nil, a.logger)
	return platesolve.NewSolver(client, a.cfg.Astrometry,
		platesolve.WithLogger(a.logger),
		platesolve.WithSender(a.transmitter()),
		platesolve.WithObservers(store),
	)
}
