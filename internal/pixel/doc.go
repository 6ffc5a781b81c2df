// Package pixel holds the in-memory LED grid and its color palette.
//
// The Store is the only owner of grid state. Every TogglePixel call is
// forwarded to the selected device as an independent single-pixel update:
// there is no batching, coalescing or undo, and a toggle is never blocked by
// the absence of a device.
//
//	store, _ := pixel.NewStore(32, 32, pixel.Red, session, client)
//	store.TogglePixel(0, 0) // grid changes, one request to the selected device
//
// Palette RGB values are only used at the device protocol boundary.
package pixel
