// Package discovery finds LED matrix controllers on the local network and
// tracks which one the user has selected.
//
// Matrix firmware advertises itself over multicast DNS as a "_neopixel._tcp"
// service in the "local." domain. Each advertisement is resolved to its first
// IPv4 address; advertisements that carry no usable address, or that do not
// resolve within five seconds, are dropped.
//
// # Session
//
// A Session holds the discovered list and the current selection. It is
// created once and shared by every front end (terminal UI, websocket server).
// All of its state lives on a single goroutine, so discovery callbacks and
// user actions never race:
//
//	session := discovery.NewSession(discovery.NewMDNSProvider())
//	defer session.Close()
//
//	session.StartBrowsing()
//	events, stop := session.Subscribe()
//	defer stop()
//
//	for ev := range events {
//	    fmt.Println(ev.Kind, ev.Device)
//	}
//
// Restarting browsing clears the list. Losing a device removes it from the
// list but never clears the selection, and a manual address can be selected
// at any time without touching the list.
//
// # Removal
//
// The mDNS library reports services only as they appear. MDNSProvider
// therefore browses in repeated sweeps and reports a device as removed after
// it has been absent from two sweeps in a row.
//
// # One-shot scans
//
// Scan browses for a fixed window and returns what it found, for command
// line use:
//
//	devices, err := discovery.ScanForDevices(ctx, 5*time.Second)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
