// Package config loads settings from defaults, an optional config file and
// STARLINK_* environment variables. Invalid values are logged and replaced
// by their defaults; only settings that would make the service unsafe to
// start are reported as errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/syt1126/StarLink-Pro-app/internal/auth"
	"github.com/syt1126/StarLink-Pro-app/internal/geo"
	"github.com/syt1126/StarLink-Pro-app/internal/logging"
	"github.com/syt1126/StarLink-Pro-app/internal/platesolve"
	"github.com/syt1126/StarLink-Pro-app/internal/pointing"
	"github.com/syt1126/StarLink-Pro-app/internal/stream"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STARLINK"

// Config is the full process configuration.
type Config struct {
	HTTP       HTTPConfig
	Log        logging.Config
	Auth       auth.Config
	Observer   transform.Observer
	Locate     LocateConfig
	Mount      MountConfig
	Astrometry platesolve.Config
	Stream     stream.Config
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr           string
	TrustProxy     bool  // Honour X-Forwarded-For / X-Real-IP
	MaxUploadBytes int64 // Largest accepted star-field image
}

// LocateConfig controls the startup IP geolocation lookup.
type LocateConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// MountConfig holds the mount address and command pacing.
type MountConfig struct {
	IP            string
	Port          int
	Timeout       time.Duration
	CommandRate   float64 // Pointing commands per second per API client
	CommandBurst  int
	TrackInterval time.Duration
}

// Pointing returns the transmitter settings.
func (m MountConfig) Pointing() pointing.Config {
	return pointing.Config{Port: m.Port, Timeout: m.Timeout}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key may also come from the MY_API_KEY variable used by
	// existing .env files.
	_ = v.BindEnv("astrometry.api_key", EnvPrefix+"_ASTROMETRY_API_KEY", "MY_API_KEY")
	return v
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	solve := platesolve.DefaultConfig()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.max_upload_bytes", 25<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.add_source", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("observer.latitude", transform.DefaultLatitude)
	v.SetDefault("observer.longitude", transform.DefaultLongitude)

	v.SetDefault("locate.enabled", true)
	v.SetDefault("locate.url", geo.DefaultURL)
	v.SetDefault("locate.timeout", geo.DefaultTimeout)

	v.SetDefault("mount.ip", "")
	v.SetDefault("mount.port", pointing.DefaultPort)
	v.SetDefault("mount.timeout", pointing.DefaultTimeout)
	v.SetDefault("mount.command_rate", 2.0)
	v.SetDefault("mount.command_burst", 4)
	v.SetDefault("mount.track_interval", 2*time.Second)

	v.SetDefault("astrometry.base_url", solve.BaseURL)
	v.SetDefault("astrometry.api_key", "")
	v.SetDefault("astrometry.poll_interval", solve.PollInterval)
	v.SetDefault("astrometry.assignment_attempts", solve.AssignmentAttempts)
	v.SetDefault("astrometry.status_attempts", solve.StatusAttempts)
	v.SetDefault("astrometry.login_timeout", solve.LoginTimeout)
	v.SetDefault("astrometry.upload_timeout", solve.UploadTimeout)
	v.SetDefault("astrometry.poll_timeout", solve.PollTimeout)

	v.SetDefault("stream.max_concurrent_per_ip", stream.DefaultMaxConcurrentPerIP)
	v.SetDefault("stream.keepalive_interval", stream.DefaultKeepaliveInterval)
}

// ReadFile merges a config file (toml, yaml, json or .env) into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".env") {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	// .env files carry the key as a bare MY_API_KEY entry.
	if key := v.GetString("my_api_key"); key != "" {
		v.SetDefault("astrometry.api_key", key)
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper, logger *slog.Logger) (Config, error) {
	var cfg Config

	authCfg, err := loadAuth(v, logger)
	if err != nil {
		return cfg, err
	}
	cfg.Auth = authCfg

	cfg.HTTP = HTTPConfig{
		Addr:           v.GetString("http.addr"),
		TrustProxy:     getBool(v, logger, "http.trust_proxy", false),
		MaxUploadBytes: int64(positiveInt(v, logger, "http.max_upload_bytes", 25<<20)),
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	cfg.Log = loadLog(v, logger)
	cfg.Observer = loadObserver(v, logger)

	cfg.Locate = LocateConfig{
		Enabled: getBool(v, logger, "locate.enabled", true),
		URL:     v.GetString("locate.url"),
		Timeout: positiveDuration(v, logger, "locate.timeout", geo.DefaultTimeout),
	}

	cfg.Mount = loadMount(v, logger)
	cfg.Astrometry = loadAstrometry(v, logger)

	cfg.Stream = stream.Config{
		MaxConcurrentPerIP: positiveInt(v, logger, "stream.max_concurrent_per_ip", stream.DefaultMaxConcurrentPerIP),
		KeepaliveInterval:  positiveDuration(v, logger, "stream.keepalive_interval", stream.DefaultKeepaliveInterval),
	}

	logger.Info("config loaded",
		"http_addr", cfg.HTTP.Addr,
		"auth_enabled", cfg.Auth.Enabled,
		"observer", cfg.Observer,
		"locate_enabled", cfg.Locate.Enabled,
		"mount_ip", cfg.Mount.IP,
		"mount_port", cfg.Mount.Port,
		"astrometry_url", cfg.Astrometry.BaseURL,
		"astrometry_key_set", cfg.Astrometry.APIKey != "",
	)
	return cfg, nil
}

func loadAuth(v *viper.Viper, logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabled, err := strconv.ParseBool(v.GetString("auth.enabled"))
	if err != nil {
		return cfg, errors.New(EnvPrefix + "_AUTH_ENABLED must be a boolean value (true/false/1/0)")
	}
	cfg.Enabled = enabled

	if cfg.Enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New(EnvPrefix + "_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}
	return cfg, nil
}

func loadLog(v *viper.Viper, logger *slog.Logger) logging.Config {
	cfg := logging.Config{
		Level:     v.GetString("log.level"),
		Format:    strings.ToLower(v.GetString("log.format")),
		AddSource: getBool(v, logger, "log.add_source", false),
	}
	if !logging.ValidLevel(cfg.Level) {
		logger.Warn("invalid log.level value, using default", "value", cfg.Level, "default", "info")
		cfg.Level = "info"
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		logger.Warn("invalid log.format value, using default", "value", cfg.Format, "default", "json")
		cfg.Format = "json"
	}
	return cfg
}

func loadObserver(v *viper.Viper, logger *slog.Logger) transform.Observer {
	obs := transform.Observer{
		Latitude:  v.GetFloat64("observer.latitude"),
		Longitude: v.GetFloat64("observer.longitude"),
	}
	if err := obs.Validate(); err != nil {
		logger.Warn("invalid observer location, using default", "value", obs, "default", transform.DefaultObserver(), "error", err)
		return transform.DefaultObserver()
	}
	return obs
}

func loadMount(v *viper.Viper, logger *slog.Logger) MountConfig {
	cfg := MountConfig{
		IP:            strings.TrimSpace(v.GetString("mount.ip")),
		Port:          v.GetInt("mount.port"),
		Timeout:       positiveDuration(v, logger, "mount.timeout", pointing.DefaultTimeout),
		CommandRate:   v.GetFloat64("mount.command_rate"),
		CommandBurst:  positiveInt(v, logger, "mount.command_burst", 4),
		TrackInterval: positiveDuration(v, logger, "mount.track_interval", 2*time.Second),
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		logger.Warn("invalid mount.port value, using default", "value", cfg.Port, "default", pointing.DefaultPort)
		cfg.Port = pointing.DefaultPort
	}
	if cfg.CommandRate <= 0 {
		logger.Warn("invalid mount.command_rate value, using default", "value", v.GetString("mount.command_rate"), "default", 2)
		cfg.CommandRate = 2
	}
	return cfg
}

func loadAstrometry(v *viper.Viper, logger *slog.Logger) platesolve.Config {
	d := platesolve.DefaultConfig()
	cfg := platesolve.Config{
		BaseURL:            strings.TrimSpace(v.GetString("astrometry.base_url")),
		APIKey:             strings.TrimSpace(v.GetString("astrometry.api_key")),
		PollInterval:       positiveDuration(v, logger, "astrometry.poll_interval", d.PollInterval),
		AssignmentAttempts: positiveInt(v, logger, "astrometry.assignment_attempts", d.AssignmentAttempts),
		StatusAttempts:     positiveInt(v, logger, "astrometry.status_attempts", d.StatusAttempts),
		LoginTimeout:       positiveDuration(v, logger, "astrometry.login_timeout", d.LoginTimeout),
		UploadTimeout:      positiveDuration(v, logger, "astrometry.upload_timeout", d.UploadTimeout),
		PollTimeout:        positiveDuration(v, logger, "astrometry.poll_timeout", d.PollTimeout),
		Upload:             d.Upload,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.APIKey == "" {
		logger.Warn("no astrometry API key configured, plate solving will be rejected by the service")
	}
	return cfg
}

func positiveInt(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	n := v.GetInt(key)
	if n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v.GetString(key), "default", def)
		return def
	}
	return n
}

// positiveDuration accepts Go duration strings ("3s") or plain seconds.
func positiveDuration(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	} else if d := v.GetDuration(key); d > 0 {
		return d
	}
	logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def.String())
	return def
}

func getBool(v *viper.Viper, logger *slog.Logger, key string, def bool) bool {
	raw := v.GetString(key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def)
		return def
	}
	return b
}
