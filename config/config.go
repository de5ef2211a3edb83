// Package config loads the coordinator's TOML configuration and applies
// command-line overrides on top of it.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"bgh-aircon/bgh"
	"bgh-aircon/bgh/handler"
)

const (
	// DefaultConfigFile is the config file looked up in the working
	// directory when -config is not given.
	DefaultConfigFile = "config.toml"
)

// DeviceConfig is one statically configured unit.
type DeviceConfig struct {
	ID string `toml:"id"`
	IP string `toml:"ip"`
}

// Config is the whole application configuration.
type Config struct {
	Debug bool `toml:"debug"`
	Log   struct {
		Filename string `toml:"filename"`
	} `toml:"log"`
	Network struct {
		CommandPort   int `toml:"command_port"`
		BroadcastPort int `toml:"broadcast_port"`
	} `toml:"network"`
	Coordinator struct {
		PollInterval       string `toml:"poll_interval"`       // e.g. "10s"
		StalenessThreshold string `toml:"staleness_threshold"` // e.g. "25s"
		BroadcastRateLimit int    `toml:"broadcast_rate_limit"`
	} `toml:"coordinator"`
	WebSocket struct {
		Enabled                bool   `toml:"enabled"`
		Addr                   string `toml:"addr"`
		PeriodicUpdateInterval string `toml:"periodic_update_interval"` // e.g. "1m", "0" to disable
	} `toml:"websocket"`
	TLS struct {
		Enabled  bool   `toml:"enabled"`
		CertFile string `toml:"cert_file"`
		KeyFile  string `toml:"key_file"`
	} `toml:"tls"`
	Devices []DeviceConfig `toml:"devices"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Log.Filename = "bgh-aircon.log"
	cfg.Network.CommandPort = bgh.CommandPort
	cfg.Network.BroadcastPort = bgh.BroadcastPort
	cfg.Coordinator.PollInterval = handler.DefaultPollInterval.String()
	cfg.Coordinator.StalenessThreshold = handler.DefaultStalenessThreshold.String()
	cfg.Coordinator.BroadcastRateLimit = handler.DefaultBroadcastRateLimit
	cfg.WebSocket.Addr = ":8080"
	cfg.WebSocket.PeriodicUpdateInterval = "1m"
	return cfg
}

// LoadConfig loads configuration with the following precedence:
// the given path, then ./config.toml if it exists, then defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	filePath := configPath
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		} else {
			return config, nil
		}
	}

	if _, err := toml.DecodeFile(filePath, config); err != nil {
		return nil, err
	}

	return config, nil
}

// CoordinatorOptions parses the coordinator durations into options for the
// state coordinator.
func (c *Config) CoordinatorOptions() (handler.CoordinatorOptions, error) {
	var opts handler.CoordinatorOptions

	pollInterval, err := time.ParseDuration(c.Coordinator.PollInterval)
	if err != nil {
		return opts, fmt.Errorf("invalid poll_interval %q: %w", c.Coordinator.PollInterval, err)
	}
	stalenessThreshold, err := time.ParseDuration(c.Coordinator.StalenessThreshold)
	if err != nil {
		return opts, fmt.Errorf("invalid staleness_threshold %q: %w", c.Coordinator.StalenessThreshold, err)
	}
	if pollInterval <= 0 {
		return opts, fmt.Errorf("poll_interval must be positive, got %q", c.Coordinator.PollInterval)
	}
	if stalenessThreshold <= pollInterval {
		return opts, fmt.Errorf("staleness_threshold %q must exceed poll_interval %q", c.Coordinator.StalenessThreshold, c.Coordinator.PollInterval)
	}
	if c.Coordinator.BroadcastRateLimit <= 0 {
		return opts, fmt.Errorf("broadcast_rate_limit must be positive, got %d", c.Coordinator.BroadcastRateLimit)
	}

	opts.PollInterval = pollInterval
	opts.StalenessThreshold = stalenessThreshold
	opts.BroadcastRateLimit = float64(c.Coordinator.BroadcastRateLimit)
	return opts, nil
}

// PeriodicUpdateInterval parses the full-state push cadence. "0" disables
// the periodic push.
func (c *Config) PeriodicUpdateInterval() (time.Duration, error) {
	if c.WebSocket.PeriodicUpdateInterval == "0" {
		return 0, nil
	}
	interval, err := time.ParseDuration(c.WebSocket.PeriodicUpdateInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid periodic_update_interval %q: %w", c.WebSocket.PeriodicUpdateInterval, err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("periodic_update_interval must not be negative, got %q", c.WebSocket.PeriodicUpdateInterval)
	}
	return interval, nil
}

// ValidateDevices checks the static device table for duplicate IDs and
// unparsable addresses.
func (c *Config) ValidateDevices() error {
	seen := make(map[string]struct{}, len(c.Devices))
	for _, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device with IP %s has no id", d.IP)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate device id: %s", d.ID)
		}
		seen[d.ID] = struct{}{}
		ip := net.ParseIP(d.IP)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("device %s: invalid IPv4 address %q", d.ID, d.IP)
		}
	}
	return nil
}

// CommandLineArgs holds values from command-line flags, with a Specified
// flag per value so unset flags don't clobber file settings.
type CommandLineArgs struct {
	ConfigFile      string
	ConfigSpecified bool

	Debug          bool
	DebugSpecified bool

	LogFilename          string
	LogFilenameSpecified bool

	WebSocketEnabled          bool
	WebSocketEnabledSpecified bool
	WebSocketAddr             string
	WebSocketAddrSpecified    bool

	TLSEnabled           bool
	TLSEnabledSpecified  bool
	TLSCertFile          string
	TLSCertFileSpecified bool
	TLSKeyFile           string
	TLSKeyFileSpecified  bool
}

// ApplyCommandLineArgs overrides file settings with values the user gave on
// the command line.
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	if args.WebSocketEnabledSpecified {
		c.WebSocket.Enabled = args.WebSocketEnabled
	}
	if args.WebSocketAddrSpecified {
		c.WebSocket.Addr = args.WebSocketAddr
	}
	if args.TLSEnabledSpecified {
		c.TLS.Enabled = args.TLSEnabled
	}
	if args.TLSCertFileSpecified {
		c.TLS.CertFile = args.TLSCertFile
	}
	if args.TLSKeyFileSpecified {
		c.TLS.KeyFile = args.TLSKeyFile
	}
}

// ParseCommandLineArgs parses os.Args into CommandLineArgs.
func ParseCommandLineArgs() CommandLineArgs {
	var args CommandLineArgs

	configFileFlag := flag.String("config", "", "path to the TOML config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	logFilenameFlag := flag.String("log", "bgh-aircon.log", "log file name")
	websocketFlag := flag.Bool("websocket", false, "enable the WebSocket server")
	wsAddrFlag := flag.String("ws-addr", ":8080", "WebSocket server listen address")
	tlsFlag := flag.Bool("ws-tls", false, "enable TLS on the WebSocket server")
	certFileFlag := flag.String("ws-cert-file", "", "TLS certificate file")
	keyFileFlag := flag.String("ws-key-file", "", "TLS key file")

	flag.Parse()

	specified := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		specified[f.Name] = true
	})

	args.ConfigFile = *configFileFlag
	args.ConfigSpecified = specified["config"]

	args.Debug = *debugFlag
	args.DebugSpecified = specified["debug"]

	args.LogFilename = *logFilenameFlag
	args.LogFilenameSpecified = specified["log"]

	args.WebSocketEnabled = *websocketFlag
	args.WebSocketEnabledSpecified = specified["websocket"]

	args.WebSocketAddr = *wsAddrFlag
	args.WebSocketAddrSpecified = specified["ws-addr"]

	args.TLSEnabled = *tlsFlag
	args.TLSEnabledSpecified = specified["ws-tls"]

	args.TLSCertFile = *certFileFlag
	args.TLSCertFileSpecified = specified["ws-cert-file"]

	args.TLSKeyFile = *keyFileFlag
	args.TLSKeyFileSpecified = specified["ws-key-file"]

	return args
}
