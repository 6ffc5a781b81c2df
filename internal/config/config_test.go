package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/neopixel/internal/pixel"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "neopixel") {
		t.Errorf("GetConfigDir() = %v, should contain 'neopixel'", configDir)
	}

	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg", "neopixel") {
		t.Errorf("GetConfigDir() = %v, should honour XDG_CONFIG_HOME", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %v, want %v", cfg.Version, CurrentVersion)
	}
	if cfg.Discovery.Service != "_neopixel._tcp" || cfg.Discovery.Domain != "local." {
		t.Errorf("Discovery = %+v", cfg.Discovery)
	}
	if cfg.ResolveTimeout() != 5*time.Second {
		t.Errorf("ResolveTimeout() = %v, want 5s", cfg.ResolveTimeout())
	}
	if cfg.SweepInterval() != 15*time.Second {
		t.Errorf("SweepInterval() = %v, want 15s", cfg.SweepInterval())
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.RequestTimeout())
	}
	if cfg.Grid.Rows != 32 || cfg.Grid.Cols != 32 {
		t.Errorf("Grid = %dx%d, want 32x32", cfg.Grid.Rows, cfg.Grid.Cols)
	}
	if cfg.OnColor() != pixel.Red {
		t.Errorf("OnColor() = %v, want red", cfg.OnColor())
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Grid.Rows != pixel.DefaultRows {
		t.Errorf("missing file should give defaults, got %+v", cfg.Grid)
	}
}

func TestLoadFrom_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
grid:
  on_color: blue
discovery:
  resolve_timeout: 2
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.OnColor() != pixel.Blue {
		t.Errorf("OnColor() = %v, want blue", cfg.OnColor())
	}
	if cfg.ResolveTimeout() != 2*time.Second {
		t.Errorf("ResolveTimeout() = %v, want 2s", cfg.ResolveTimeout())
	}
	if cfg.Grid.Rows != 32 || cfg.Discovery.Service != "_neopixel._tcp" {
		t.Errorf("unset fields should take defaults: %+v %+v", cfg.Grid, cfg.Discovery)
	}
	if cfg.Server == nil || cfg.Server.Listen != ":8080" {
		t.Errorf("missing section should take defaults: %+v", cfg.Server)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "grid: [", "parse"},
		{"future version", "version: 7\n", "unsupported config version"},
		{"off is not an on color", "grid:\n  on_color: off\n", "on_color"},
		{"unknown color", "grid:\n  on_color: mauve\n", "on_color"},
		{"negative size", "grid:\n  rows: -1\n", "grid size"},
		{"negative timeout", "device:\n  request_timeout: -3\n", "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}

			_, err := LoadFrom(path)
			if err == nil {
				t.Fatal("LoadFrom() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Grid.Rows = 16
	cfg.Grid.OnColor = "green"
	cfg.Server.Listen = "127.0.0.1:9000"
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "null"}

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# NeoPixel Matrix Controller Configuration") {
		t.Error("saved file should start with the header comment")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Grid.Rows != 16 || loaded.OnColor() != pixel.Green || loaded.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("loaded = %+v %+v", loaded.Grid, loaded.Server)
	}
	if len(loaded.Server.AllowedOrigins) != 2 || loaded.Server.AllowedOrigins[1] != "null" {
		t.Errorf("AllowedOrigins = %v", loaded.Server.AllowedOrigins)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
		}
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := Init(path, false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(path, false); !errors.Is(err, ErrExists) {
		t.Errorf("second Init() = %v, want ErrExists", err)
	}
	if err := Init(path, true); err != nil {
		t.Errorf("forced Init() = %v", err)
	}
}

func TestOnColor_Fallback(t *testing.T) {
	cfg := Default()
	cfg.Grid.OnColor = "not-a-color"
	if cfg.OnColor() != pixel.DefaultOn {
		t.Errorf("OnColor() = %v, want default", cfg.OnColor())
	}
}
