package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/neopixel/internal/device"
	"github.com/muurk/neopixel/internal/ui"
)

var textSpeed int

func init() {
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(patternCmd)
	rootCmd.AddCommand(textCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(ledsCmd)
}

// patternsCmd lists the animations built into the firmware
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the patterns a matrix can play",
	Example: `  neopixel-ctl patterns --device 192.168.1.130
  neopixel-ctl patterns --device 192.168.1.130 --format json`,
	Args: cobra.NoArgs,
	RunE: runPatterns,
}

func init() {
	patternsCmd.Flags().IntVar(&requestTimeout, "timeout", 0, "Request timeout in seconds (default from config)")
	patternsCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

func runPatterns(cmd *cobra.Command, args []string) error {
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	patterns, err := newDeviceClient(requestTimeout).ListPatterns(contextOf(cmd), address)
	if err != nil {
		if outputFormat == "json" {
			fmt.Fprintln(os.Stderr, device.TroubleshootingHint(err))
		} else {
			fmt.Println(ui.RenderFailure("No pattern list from "+address, err, device.TroubleshootingHint(err)))
		}
		return fmt.Errorf("failed to list patterns: %w", err)
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(patterns, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(ui.RenderSuccess(fmt.Sprintf("%d patterns on %s", len(patterns), address), patternFields(patterns)...))
	return nil
}

// patternFields groups patterns by category, keeping firmware order within
// each category.
func patternFields(patterns []device.Pattern) []ui.Field {
	var categories []string
	byCategory := make(map[string][]device.Pattern)
	for _, p := range patterns {
		if _, seen := byCategory[p.Category]; !seen {
			categories = append(categories, p.Category)
		}
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}
	sort.Strings(categories)

	fields := make([]ui.Field, 0, len(patterns))
	for _, category := range categories {
		for _, p := range byCategory[category] {
			fields = append(fields, ui.Field{
				Key:   fmt.Sprintf("%4d", p.ID),
				Value: fmt.Sprintf("%s (%s)", p.Name, category),
			})
		}
	}
	return fields
}

// patternCmd switches the running animation
var patternCmd = &cobra.Command{
	Use:     "pattern <id>",
	Short:   "Play a built-in pattern",
	Long:    `Switch a matrix to one of its built-in patterns. Use "patterns" to list the ids.`,
	Example: `  neopixel-ctl pattern 104 --device 192.168.1.130`,
	Args:    cobra.ExactArgs(1),
	RunE:    runPattern,
}

func runPattern(cmd *cobra.Command, args []string) error {
	id, err := parseNonNegative("pattern id", args[0])
	if err != nil {
		return err
	}
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	err = newDeviceClient(requestTimeout).SetPattern(contextOf(cmd), address, id)
	return report(address, "Pattern "+strconv.Itoa(id), err,
		ui.Field{Key: "Pattern", Value: strconv.Itoa(id)},
	)
}

// textCmd scrolls a message across the matrix
var textCmd = &cobra.Command{
	Use:   "text <message>",
	Short: "Scroll a message across the matrix",
	Long: `Scroll a message across the matrix. The firmware upper-cases the text.

--speed is the scroll delay in milliseconds and is clamped to 20-200.
Without it the matrix keeps its current speed.`,
	Example: `  neopixel-ctl text "hello world" --device 192.168.1.130
  neopixel-ctl text hello --speed 50`,
	Args: cobra.MinimumNArgs(1),
	RunE: runText,
}

func init() {
	textCmd.Flags().IntVar(&textSpeed, "speed", 0, "Scroll delay in milliseconds (20-200)")
	for _, c := range []*cobra.Command{patternCmd, textCmd, layoutCmd, ledsCmd} {
		c.Flags().IntVar(&requestTimeout, "timeout", 0, "Request timeout in seconds (default from config)")
	}
}

func runText(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message must not be empty")
	}
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	err = newDeviceClient(requestTimeout).SetText(contextOf(cmd), address, message, textSpeed)
	fields := []ui.Field{{Key: "Text", Value: strings.ToUpper(message)}}
	if textSpeed != 0 {
		fields = append(fields, ui.Field{Key: "Speed", Value: fmt.Sprintf("%d ms", device.ClampTextSpeed(textSpeed))})
	}
	return report(address, "Text scrolling", err, fields...)
}

// layoutCmd switches the panel layout
var layoutCmd = &cobra.Command{
	Use:     "layout <id>",
	Short:   "Switch the panel layout",
	Example: `  neopixel-ctl layout 0 --device 192.168.1.130`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLayout,
}

func runLayout(cmd *cobra.Command, args []string) error {
	id, err := parseNonNegative("layout id", args[0])
	if err != nil {
		return err
	}
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	result, err := newDeviceClient(requestTimeout).SetLayout(contextOf(cmd), address, id)
	fields := []ui.Field{{Key: "Layout", Value: strconv.Itoa(id)}}
	if err == nil {
		fields = append(fields, ui.Field{Key: "Name", Value: result.Layout})
	}
	return report(address, "Layout switched", err, fields...)
}

// ledsCmd sets how many LEDs the firmware drives
var ledsCmd = &cobra.Command{
	Use:     "leds <count>",
	Short:   "Set the number of active LEDs",
	Long:    fmt.Sprintf("Set how many LEDs the matrix drives (1-%d). LEDs past the count are switched off.", device.MaxLEDs),
	Example: `  neopixel-ctl leds 512 --device 192.168.1.130`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLEDs,
}

func runLEDs(cmd *cobra.Command, args []string) error {
	count, err := parseNonNegative("LED count", args[0])
	if err != nil {
		return err
	}
	address, err := getDeviceAddress(contextOf(cmd))
	if err != nil {
		return err
	}

	err = newDeviceClient(requestTimeout).SetLEDCount(contextOf(cmd), address, count)
	return report(address, "LED count set", err,
		ui.Field{Key: "LEDs", Value: strconv.Itoa(count)},
	)
}

// report prints the result box for a control command.
func report(address, title string, err error, fields ...ui.Field) error {
	if err != nil {
		fmt.Println(ui.RenderFailure(title+" failed", err, device.TroubleshootingHint(err)))
		return fmt.Errorf("request to %s failed: %w", address, err)
	}
	fields = append([]ui.Field{{Key: "Device", Value: address}}, fields...)
	fmt.Println(ui.RenderSuccess(title, fields...))
	return nil
}

func parseNonNegative(what, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, arg, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %d: must not be negative", what, n)
	}
	return n, nil
}
