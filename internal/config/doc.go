// Package config provides user configuration management for the matrix controller.
//
// This package manages a YAML-based configuration file holding tuning values:
// the mDNS service type and timeouts, the grid geometry and on color, the
// device request timeout and the websocket server listen address. Nothing
// about the session (selected device, grid contents) is persisted.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/neopixel/config.yaml or $HOME/.config/neopixel/config.yaml
//   - macOS: $HOME/.config/neopixel/config.yaml
//   - Windows: %LOCALAPPDATA%\neopixel\config.yaml
//
// A missing file is not an error; Load returns defaults. Fields left out of
// the file also take their defaults.
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg.Grid.OnColor = "blue"
//	if err := cfg.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// File writes are protected by a mutex and performed atomically through a
// temporary file and rename.
package config
