// Neopixel-ctl controls an ESP-based LED matrix over the local network.
//
// It finds matrices advertised over mDNS, lets the user paint a pixel grid
// in an interactive terminal UI, and mirrors every toggle to the selected
// matrix as a single-pixel HTTP request. The same session can be driven from
// a browser through the websocket server started by "serve".
//
// Usage:
//
//	neopixel-ctl [command] [flags]
//
// Running without arguments launches the interactive UI.
// See 'neopixel-ctl --help' for available commands.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/neopixel/internal/config"
	"github.com/muurk/neopixel/internal/device"
	"github.com/muurk/neopixel/internal/discovery"
	"github.com/muurk/neopixel/internal/logging"
	"github.com/muurk/neopixel/internal/pixel"
	"github.com/muurk/neopixel/internal/tui"
	"github.com/muurk/neopixel/internal/version"
)

// logFileName is written inside the config directory while the UI runs
const logFileName = "neopixel.log"

// Global flags
var (
	deviceAddr string
	logLevel   string
	configFile string
)

// cfg is loaded once before any command runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "neopixel-ctl",
	Short: "LED Matrix Controller",
	Long: `Discover LED matrices on the local network and paint them pixel by pixel.

Matrices advertise themselves over mDNS as _neopixel._tcp. Every toggle in
the grid is sent to the selected matrix immediately; the grid keeps working
with no matrix selected.

If no command is specified, the interactive UI will launch automatically.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configFile != "" {
			cfg, err = config.LoadFrom(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// The interactive UI sets up its own file logger
		if cmd != cmd.Root() {
			return logging.Initialize(logLevel)
		}
		return nil
	},
	RunE: runTUI,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceAddr, "device", "", "Matrix address (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent if unset")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is the per-user config path)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("neopixel-ctl %s (commit: %s, %s, %s)\n", info.Version, info.Commit, info.GoVersion, info.Platform)
	},
}

// runTUI launches the interactive UI
func runTUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("the interactive UI needs a terminal; see 'neopixel-ctl --help' for scriptable commands")
	}

	// Logs go to a file so they never tear the screen
	logPath := ""
	if dir, err := config.GetConfigDir(); err == nil {
		if err := os.MkdirAll(dir, 0700); err == nil {
			logPath = filepath.Join(dir, logFileName)
		}
	}
	if err := logging.InitializeToFile(logLevel, logPath); err != nil {
		return err
	}
	defer logging.Sync()

	session, store, err := newController(discovery.NewMDNSProvider())
	if err != nil {
		return err
	}
	defer session.Close()

	if deviceAddr != "" {
		session.SetManualAddress(deviceAddr)
	}

	p := tea.NewProgram(tui.NewModel(session, store), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui error: %w", err)
	}
	return nil
}

// newController wires a discovery session and a pixel store from cfg. The
// provider is tuned from cfg before the session starts using it.
func newController(provider *discovery.MDNSProvider) (*discovery.Session, *pixel.Store, error) {
	provider.Service = cfg.Discovery.Service
	provider.Domain = cfg.Discovery.Domain
	provider.ResolveTimeout = cfg.ResolveTimeout()
	provider.SweepInterval = cfg.SweepInterval()

	client := newDeviceClient(0)

	session := discovery.NewSession(provider)
	store, err := pixel.NewStore(cfg.Grid.Rows, cfg.Grid.Cols, cfg.OnColor(), session, client)
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("invalid grid settings: %w", err)
	}
	return session, store, nil
}

// newDeviceClient uses timeoutSeconds when positive, else the configured
// request timeout.
func newDeviceClient(timeoutSeconds int) *device.Client {
	client := device.NewClient()
	if timeoutSeconds > 0 {
		client.SetTimeout(time.Duration(timeoutSeconds) * time.Second)
	} else {
		client.SetTimeout(cfg.RequestTimeout())
	}
	return client
}
