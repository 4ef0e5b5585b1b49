package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/meshledger/meshledger/common"
)

// Default filenames, relative to DataDir.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key.
	DefaultKeyfile = "priv_key"

	// DefaultWhitelistFile is the default name of the file containing the
	// consensus whitelist.
	DefaultWhitelistFile = "whitelist.json"
)

// Default configuration values.
const (
	DefaultLogLevel      = "debug"
	DefaultBindAddr      = "127.0.0.1:1337"
	DefaultServiceAddr   = "127.0.0.1:8000"
	DefaultRendezvousURL = "ws://127.0.0.1:8080"
	DefaultDialTimeout   = 10 * time.Second
	DefaultMinVotes      = 1
)

// Config contains all the configuration properties of a node.
type Config struct {
	// DataDir is the top-level directory containing this node's
	// configuration and data (key file, whitelist file).
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port this node listens on for direct
	// peer connections.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is the address advertised to other peers during the
	// rendezvous handshake, when it differs from BindAddr (e.g. behind a
	// port-forwarded NAT).
	AdvertiseAddr string `mapstructure:"advertise"`

	// RendezvousURL is the WebSocket endpoint of the rendezvous service
	// this node registers with. Defaults to port 8080 (Open Question 5).
	RendezvousURL string `mapstructure:"rendezvous"`

	// NoService disables the read-only HTTP status API.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP status API.
	ServiceAddr string `mapstructure:"service-listen"`

	// DialTimeout is read from the dial-timeout flag or config key. The
	// registry does not consult it: outbound peer dials are bounded by the
	// fixed net.DialTimeout (10s).
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// MinVotes is the floor on approvals required to commit a proposed
	// block, independent of whitelist size. Defaults to 1.
	MinVotes int `mapstructure:"min-votes"`

	// Moniker is this node's friendly display name.
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a Config with every default value set.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      DefaultLogLevel,
		BindAddr:      DefaultBindAddr,
		ServiceAddr:   DefaultServiceAddr,
		RendezvousURL: DefaultRendezvousURL,
		DialTimeout:   DefaultDialTimeout,
		MinVotes:      DefaultMinVotes,
	}
}

// NewTestConfig returns a Config with default values and a test logger that
// routes output through testing.T.Log.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level data directory.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// WhitelistFile returns the full path of the file containing the
// consensus whitelist.
func (c *Config) WhitelistFile() string {
	return filepath.Join(c.DataDir, DefaultWhitelistFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "meshledger".
// Besides the usual stderr output, info and debug records are mirrored to
// files under DataDir so an operator can tail a node's history after the
// terminal it was started in is gone.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if hook := c.fileHook(); hook != nil {
			c.logger.Hooks.Add(hook)
		}
	}
	return c.logger.WithField("prefix", "meshledger")
}

// fileHook builds an lfshook that mirrors info and debug records to files
// under DataDir, or nil if DataDir can't be created.
func (c *Config) fileHook() logrus.Hook {
	if c.DataDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return nil
	}

	pathMap := lfshook.PathMap{
		logrus.InfoLevel:  filepath.Join(c.DataDir, "meshledger_info.log"),
		logrus.DebugLevel: filepath.Join(c.DataDir, "meshledger_debug.log"),
	}

	return lfshook.NewHook(pathMap, new(prefixed.TextFormatter))
}

// DefaultDataDir returns the default directory name for top-level node
// configuration, based on the underlying OS, attempting to respect
// conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home == "" {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, ".Meshledger")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Meshledger")
	default:
		return filepath.Join(home, ".meshledger")
	}
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
