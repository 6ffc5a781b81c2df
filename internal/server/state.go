package server

import (
	"github.com/muurk/neopixel/internal/discovery"
	"github.com/muurk/neopixel/internal/pixel"
)

// Session is the part of *discovery.Session the server drives.
type Session interface {
	StartBrowsing()
	Devices() []discovery.Device
	Selected() (discovery.Device, bool)
	Select(d discovery.Device)
	SetManualAddress(address string)
	Subscribe() (<-chan discovery.Event, func())
}

// Grid is the part of *pixel.Store the server drives.
type Grid interface {
	Rows() int
	Cols() int
	OnColor() pixel.Color
	InBounds(row, col int) bool
	TogglePixel(row, col int) pixel.Color
	Snapshot() [][]pixel.Color
	Changes() uint64
	Subscribe() (<-chan pixel.Change, func())
}

// DeviceJSON is a device as sent to clients.
type DeviceJSON struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Manual  bool   `json:"manual,omitempty"`
}

// State is the full view pushed to clients and served from /api/state.
type State struct {
	Devices  []DeviceJSON `json:"devices"`
	Selected *DeviceJSON  `json:"selected"`
	Rows     int          `json:"rows"`
	Cols     int          `json:"cols"`
	OnColor  string       `json:"on_color"`
	Changes  uint64       `json:"changes"`
	// Pixels holds one "#rrggbb" string per cell, row-major.
	Pixels [][]string `json:"pixels"`
}

func toDeviceJSON(d discovery.Device) DeviceJSON {
	return DeviceJSON{Name: d.Name, Address: d.Address, Manual: d.IsManual()}
}

// snapshotState reads a consistent-enough view of the session and grid.
// The two are read separately; a change landing in between is followed by
// another push.
func snapshotState(session Session, grid Grid) State {
	devices := session.Devices()
	state := State{
		Devices: make([]DeviceJSON, 0, len(devices)),
		Rows:    grid.Rows(),
		Cols:    grid.Cols(),
		OnColor: grid.OnColor().String(),
		Changes: grid.Changes(),
	}
	for _, d := range devices {
		state.Devices = append(state.Devices, toDeviceJSON(d))
	}
	if d, ok := session.Selected(); ok {
		sel := toDeviceJSON(d)
		state.Selected = &sel
	}

	snapshot := grid.Snapshot()
	state.Pixels = make([][]string, len(snapshot))
	for r, row := range snapshot {
		state.Pixels[r] = make([]string, len(row))
		for c, color := range row {
			state.Pixels[r][c] = color.Hex()
		}
	}
	return state
}
