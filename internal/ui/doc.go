// Package ui renders the output of the scriptable neopixel-ctl commands.
//
// Unlike the interactive terminal UI, these components follow a "run once
// and exit" pattern: a command prints a Header, does its work, then prints a
// Result box.
//
//	fmt.Println(ui.NewHeader("Set Pixel", "neopixel-ctl set-pixel 0 0",
//	    ui.Field{Key: "Device", Value: "192.168.1.130"}))
//
//	if err != nil {
//	    fmt.Println(ui.RenderFailure("Pixel not updated", err, device.TroubleshootingHint(err)))
//	}
//
// Fields render in the order given. Widths follow the terminal and fall back
// to MinTerminalWidth when stdout is not a terminal.
package ui
