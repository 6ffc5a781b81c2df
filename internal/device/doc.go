// Package device provides an HTTP client for the LED matrix firmware.
//
// The pixel path is fire-and-forget: SendPixelUpdate returns immediately and
// the request runs on its own goroutine. Nothing waits for it, retries it or
// inspects its body; failures of any kind (bad address, DNS, refused
// connection, timeout, non-2xx status) are logged at debug level and dropped.
// Every request is bounded by the client timeout so no goroutine outlives it.
//
// # Wire Format
//
//	GET http://{address}/api/setPixel?row={row}&col={col}&r={r}&g={g}&b={b}
//
// row and col are zero-based, r/g/b are 0-255 from the pixel palette.
//
// # Synchronous Calls
//
// SetPixel, GetInfo and the pattern, text, layout and LED count calls wait
// for the device and return a *RequestError that classifies the failure. The CLI uses them together with TroubleshootingHint:
//
//	client := device.NewClient()
//	info, err := client.GetInfo(ctx, "192.168.1.130")
//	if err != nil {
//	    fmt.Println(device.TroubleshootingHint(err))
//	}
package device
