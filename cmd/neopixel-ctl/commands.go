package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/neopixel/internal/config"
	"github.com/muurk/neopixel/internal/device"
	"github.com/muurk/neopixel/internal/discovery"
	"github.com/muurk/neopixel/internal/logging"
	"github.com/muurk/neopixel/internal/pixel"
	"github.com/muurk/neopixel/internal/server"
	"github.com/muurk/neopixel/internal/ui"
)

// Command flags
var (
	scanTimeout    int
	requestTimeout int
	outputFormat   string
	pingCount      int
	privileged     bool
	listenAddr     string
	forceInit      bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(setPixelCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// scanCmd discovers matrices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for LED matrices on the network",
	Long: `Scan for LED matrices using mDNS/DNS-SD discovery.

This command browses for _neopixel._tcp advertisements and lists every
matrix that resolved to an IPv4 address before the timeout.`,
	Example: `  # Scan for 5 seconds (default)
  neopixel-ctl scan

  # Longer scan for slow networks
  neopixel-ctl scan --timeout 15`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", int(discovery.DefaultScanTimeout/time.Second), "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for LED matrices (timeout: %ds)...\n\n", scanTimeout)

	devices, err := scan(contextOf(cmd), time.Duration(scanTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the matrix is powered on and joined to your WiFi")
		fmt.Println("  - mDNS does not cross routers or guest networks")
		fmt.Println("  - Try increasing --timeout for slower networks")
		fmt.Println("  - Use --device to specify the address manually")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.Name)
		fmt.Printf("   Address: %s\n", d.Address)
		fmt.Println()
	}

	fmt.Println("Use 'neopixel-ctl info --device <address>' to query a matrix")
	fmt.Println("Use 'neopixel-ctl' for the interactive UI")
	return nil
}

// scan runs a one-shot discovery with the configured service settings
func scan(ctx context.Context, timeout time.Duration) ([]discovery.Device, error) {
	provider := discovery.NewMDNSProvider()
	provider.Service = cfg.Discovery.Service
	provider.Domain = cfg.Discovery.Domain
	provider.ResolveTimeout = cfg.ResolveTimeout()
	return provider.Scan(ctx, timeout)
}

// setPixelCmd sends one pixel update and waits for the answer
var setPixelCmd = &cobra.Command{
	Use:   "set-pixel <row> <col> [color]",
	Short: "Set one pixel on a matrix",
	Long: `Send a single pixel update and wait for the matrix to acknowledge it.

The color defaults to the configured on color. Available colors:
off, red, green, blue, white.`,
	Example: `  # Light the top-left pixel in the default color
  neopixel-ctl set-pixel 0 0 --device 192.168.1.130

  # Turn a pixel off
  neopixel-ctl set-pixel 4 7 off --device 192.168.1.130`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSetPixel,
}

func init() {
	setPixelCmd.Flags().IntVar(&requestTimeout, "timeout", 0, "Request timeout in seconds (default from config)")
}

func runSetPixel(cmd *cobra.Command, args []string) error {
	row, col, err := parseCell(args[0], args[1], cfg.Grid.Rows, cfg.Grid.Cols)
	if err != nil {
		return err
	}

	color := cfg.OnColor()
	if len(args) == 3 {
		color, err = pixel.ParseColor(args[2])
		if err != nil {
			return err
		}
	}

	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	fmt.Println(ui.NewHeader("Set Pixel", cmd.CommandPath(),
		ui.Field{Key: "Device", Value: address},
		ui.Field{Key: "Pixel", Value: fmt.Sprintf("(%d,%d)", row, col)},
		ui.Field{Key: "Color", Value: fmt.Sprintf("%s %s", color, color.Hex())},
	))

	client := newDeviceClient(requestTimeout)
	if err := client.SetPixel(contextOf(cmd), address, row, col, color); err != nil {
		fmt.Println(ui.RenderFailure("Pixel not updated", err, device.TroubleshootingHint(err)))
		return fmt.Errorf("set pixel failed: %w", err)
	}

	fmt.Println(ui.RenderSuccess("Pixel updated",
		ui.Field{Key: "Request", Value: device.PixelURL(address, row, col, color.RGB())},
	))
	return nil
}

// parseCell validates a row and column against the grid size.
func parseCell(rowArg, colArg string, rows, cols int) (int, int, error) {
	row, err := strconv.Atoi(rowArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row value: %w", err)
	}
	col, err := strconv.Atoi(colArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid col value: %w", err)
	}
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return 0, 0, fmt.Errorf("pixel (%d,%d) is outside the %dx%d grid", row, col, rows, cols)
	}
	return row, col, nil
}

// infoCmd shows the firmware status document
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show matrix status",
	Long:  `Query a matrix for its current pattern, uptime and free heap.`,
	Example: `  # Show status for a specific matrix
  neopixel-ctl info --device 192.168.1.130

  # JSON output for scripting
  neopixel-ctl info --device 192.168.1.130 --format json`,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().IntVar(&requestTimeout, "timeout", 0, "Request timeout in seconds (default from config)")
	infoCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	client := newDeviceClient(requestTimeout)
	info, err := client.GetInfo(contextOf(cmd), address)
	if err != nil {
		if outputFormat == "json" {
			fmt.Fprintln(os.Stderr, device.TroubleshootingHint(err))
		} else {
			fmt.Println(ui.RenderFailure("No status from "+address, err, device.TroubleshootingHint(err)))
		}
		return fmt.Errorf("failed to get device info: %w", err)
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(ui.RenderSuccess("Matrix status",
		ui.Field{Key: "Device", Value: address},
		ui.Field{Key: "Pattern", Value: strconv.Itoa(info.CurrentPattern)},
		ui.Field{Key: "Uptime", Value: info.UptimeDuration().String()},
		ui.Field{Key: "Free heap", Value: fmt.Sprintf("%d bytes", info.Heap)},
	))
	return nil
}

// pingCmd checks basic reachability
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a matrix answers on the network",
	Long: `Send echo requests to a matrix to tell network problems apart from
problems with its web server.

Unprivileged (UDP) pings are used unless --privileged is given. On Linux
unprivileged pings need net.ipv4.ping_group_range to include your group.`,
	Example: `  neopixel-ctl ping --device 192.168.1.130
  sudo neopixel-ctl ping --device 192.168.1.130 --privileged`,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of echo requests")
	pingCmd.Flags().BoolVar(&privileged, "privileged", false, "Use raw ICMP sockets")
}

func runPing(cmd *cobra.Command, args []string) error {
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}
	host := pingHost(address)

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return fmt.Errorf("cannot ping %s: %w", host, err)
	}
	pinger.Count = pingCount
	pinger.Timeout = time.Duration(pingCount+2) * time.Second
	pinger.SetPrivileged(privileged)

	fmt.Printf("Pinging %s (%d requests)...\n", host, pingCount)
	if err := pinger.RunWithContext(contextOf(cmd)); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	stats := pinger.Statistics()
	logging.Debug("Ping finished",
		zap.String("host", host),
		zap.Int("sent", stats.PacketsSent),
		zap.Int("received", stats.PacketsRecv))
	counts := ui.Field{Key: "Replies", Value: fmt.Sprintf("%d/%d (%.0f%% loss)", stats.PacketsRecv, stats.PacketsSent, stats.PacketLoss)}
	if stats.PacketsRecv == 0 {
		fmt.Println(ui.RenderWarning(host+" did not answer", counts))
		return fmt.Errorf("%s did not answer", host)
	}
	fmt.Println(ui.RenderSuccess(host+" is reachable", counts,
		ui.Field{Key: "RTT", Value: fmt.Sprintf("min %s / avg %s / max %s", stats.MinRtt, stats.AvgRtt, stats.MaxRtt)},
	))
	return nil
}

// pingHost strips any port from a device address
func pingHost(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

// serveCmd runs the websocket front end
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the websocket server",
	Long: `Start an HTTP server that exposes discovery and the pixel grid to
browsers and scripts over a websocket.

Discovery starts immediately. Press Ctrl+C to stop.`,
	Example: `  # Listen on the configured address (default :8080)
  neopixel-ctl serve

  # Listen on loopback only and preselect a matrix
  neopixel-ctl serve --listen 127.0.0.1:9000 --device 192.168.1.130`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	defer logging.Sync()

	listen := listenAddr
	if listen == "" {
		listen = cfg.Server.Listen
	}

	session, store, err := newController(discovery.NewMDNSProvider())
	if err != nil {
		return err
	}
	defer session.Close()

	session.StartBrowsing()
	if deviceAddr != "" {
		session.SetManualAddress(deviceAddr)
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Listening on %s (Ctrl+C to stop)\n", listen)
	srv := server.New(&server.Config{
		Listen:         listen,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, session, store)
	return srv.Start(ctx)
}

// configCmd manages the config file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if err := config.Init(path, forceInit); err != nil {
			if errors.Is(err, config.ErrExists) {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			return err
		}
		fmt.Printf("✓ Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func resolveConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return config.GetConfigPath()
}

// getDeviceAddress returns --device, or the only matrix a short scan finds
func getDeviceAddress(ctx context.Context) (string, error) {
	if deviceAddr != "" {
		return deviceAddr, nil
	}

	fmt.Println("No device address specified, attempting auto-discovery...")
	devices, err := scan(ctx, discovery.DefaultScanTimeout)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}

	switch len(devices) {
	case 0:
		return "", fmt.Errorf("no devices found. Use --device to specify the address manually")
	case 1:
		fmt.Printf("Found device: %s\n\n", devices[0])
		return devices[0].Address, nil
	default:
		fmt.Printf("Found %d devices:\n", len(devices))
		for i, d := range devices {
			fmt.Printf("%d. %s\n", i+1, d)
		}
		return "", fmt.Errorf("multiple devices found. Use --device to specify which one")
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
