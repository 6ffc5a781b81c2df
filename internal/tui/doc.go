// Package tui implements the terminal user interface for the matrix controller.
//
// Built on Bubble Tea, the whole program is one screen split into two panels
// inside the shared RenderApplicationContainer layout:
//   - Devices: devices found by mDNS, plus manual address entry
//   - Matrix: the pixel grid with a movable cursor
//
// The model never owns state. It drives a discovery session and a pixel store
// through the Session and Grid interfaces and re-reads them whenever either
// publishes a change, so the view always matches what the web front end sees.
//
// # Usage Example
//
//	session := discovery.NewSession(discovery.NewMDNSProvider())
//	store, _ := pixel.NewStore(32, 32, pixel.Red, session, device.NewClient())
//
//	program := tea.NewProgram(tui.NewModel(session, store), tea.WithAltScreen())
//	if _, err := program.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Keys
//
//   - tab: switch between the device panel and the grid
//   - enter: select the highlighted device
//   - space or enter: toggle the pixel under the cursor
//   - r: clear the list and browse again (the selection is kept)
//   - m: type an address for a device mDNS cannot see
//   - q: quit
//
// Toggling with no device selected still changes the grid; nothing is sent.
package tui
