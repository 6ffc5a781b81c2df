package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/muurk/neopixel/internal/logging"
	"github.com/muurk/neopixel/internal/pixel"
)

const (
	// DefaultTimeout bounds every device request, including fire-and-forget ones
	DefaultTimeout = 5 * time.Second

	// PixelPath is the single-pixel update endpoint
	PixelPath = "/api/setPixel"

	// InfoPath is the firmware status endpoint
	InfoPath = "/info"

	// PatternsPath lists the built-in animations
	PatternsPath = "/api/patterns"

	// SetPath selects a pattern (m) or sets the active LED count (c)
	SetPath = "/set"

	// TextPath starts the scrolling text pattern
	TextPath = "/setText"

	// LayoutPath switches the panel layout
	LayoutPath = "/setLayout"
)

// Limits enforced by the firmware.
const (
	MaxLEDs      = 2048
	MinTextSpeed = 20
	MaxTextSpeed = 200
)

// Client talks to an LED matrix over its local HTTP API.
type Client struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// OnComplete, if set, is called from the request goroutine after every
	// fire-and-forget update with the request URL and its outcome.
	OnComplete func(url string, err error)
}

// Info is the status document served by the firmware at /info.
type Info struct {
	CurrentPattern int   `json:"currentPattern"`
	Uptime         int64 `json:"uptime"`
	Heap           int64 `json:"heap"`
}

// Pattern is one entry of the firmware's pattern list.
type Pattern struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// LayoutResult is the firmware's answer to a layout switch.
type LayoutResult struct {
	Status string `json:"status"`
	Layout string `json:"layout"`
}

// UptimeDuration returns Uptime as a duration.
func (i *Info) UptimeDuration() time.Duration {
	return time.Duration(i.Uptime) * time.Second
}

// NewClient creates a device client with the default timeout
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// BaseURL returns the HTTP base URL for a matrix. The address is used
// verbatim as the URL host, so "host:port" works and malformed input fails
// when the request is built.
func BaseURL(address string) string {
	return "http://" + address
}

// PixelURL builds the setPixel request URL. Parameters keep the order the
// firmware documents, so the query is not built from url.Values.
func PixelURL(address string, row, col int, rgb pixel.RGB) string {
	return fmt.Sprintf("%s%s?row=%d&col=%d&r=%d&g=%d&b=%d",
		BaseURL(address), PixelPath, row, col, rgb.R, rgb.G, rgb.B)
}

func endpoint(address, path string, query url.Values) string {
	target := BaseURL(address) + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// SendPixelUpdate issues the update on its own goroutine and returns at once.
// The outcome is only logged.
func (c *Client) SendPixelUpdate(address string, row, col int, color pixel.Color) {
	target := PixelURL(address, row, col, color.RGB())

	go func() {
		err := c.get(context.Background(), address, target, nil)
		logging.LogPixelRequest(target, err)
		if c.OnComplete != nil {
			c.OnComplete(target, err)
		}
	}()
}

// SetPixel performs a single update and waits for the device to answer.
func (c *Client) SetPixel(ctx context.Context, address string, row, col int, color pixel.Color) error {
	return c.get(ctx, address, PixelURL(address, row, col, color.RGB()), nil)
}

// GetInfo fetches the firmware status document.
func (c *Client) GetInfo(ctx context.Context, address string) (*Info, error) {
	var info Info
	if err := c.get(ctx, address, endpoint(address, InfoPath, nil), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListPatterns fetches the animations the firmware can play.
func (c *Client) ListPatterns(ctx context.Context, address string) ([]Pattern, error) {
	var patterns []Pattern
	if err := c.get(ctx, address, endpoint(address, PatternsPath, nil), &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

// SetPattern switches the matrix to the pattern with the given id.
func (c *Client) SetPattern(ctx context.Context, address string, id int) error {
	if id < 0 {
		return fmt.Errorf("invalid pattern id %d", id)
	}
	query := url.Values{"m": {strconv.Itoa(id)}}
	return c.get(ctx, address, endpoint(address, SetPath, query), nil)
}

// SetLEDCount sets how many LEDs the firmware drives. The firmware ignores
// counts outside 1..MaxLEDs without reporting it, so they are rejected here.
func (c *Client) SetLEDCount(ctx context.Context, address string, count int) error {
	if count < 1 || count > MaxLEDs {
		return fmt.Errorf("LED count %d out of range 1-%d", count, MaxLEDs)
	}
	query := url.Values{"c": {strconv.Itoa(count)}}
	return c.get(ctx, address, endpoint(address, SetPath, query), nil)
}

// SetText scrolls text across the matrix. A zero speed keeps the current
// scroll speed; other values are clamped to MinTextSpeed..MaxTextSpeed.
// The firmware answers with a redirect to its root page, which is followed.
func (c *Client) SetText(ctx context.Context, address, text string, speed int) error {
	query := url.Values{"text": {text}}
	if speed != 0 {
		query.Set("speed", strconv.Itoa(ClampTextSpeed(speed)))
	}
	return c.get(ctx, address, endpoint(address, TextPath, query), nil)
}

// SetLayout switches the panel layout. Unknown layouts come back as HTTP 400.
func (c *Client) SetLayout(ctx context.Context, address string, layout int) (*LayoutResult, error) {
	var result LayoutResult
	query := url.Values{"layout": {strconv.Itoa(layout)}}
	if err := c.get(ctx, address, endpoint(address, LayoutPath, query), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClampTextSpeed limits a scroll speed to the range the firmware accepts.
func ClampTextSpeed(speed int) int {
	if speed < MinTextSpeed {
		return MinTextSpeed
	}
	if speed > MaxTextSpeed {
		return MaxTextSpeed
	}
	return speed
}

// get performs a GET and, when out is non-nil, decodes a JSON body into it.
func (c *Client) get(ctx context.Context, address, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return NewAddressError(address, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ClassifyNetworkError(err, address)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return NewHTTPError(address, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyNetworkError(err, address)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewParseError(address, "failed to parse JSON response", err)
	}
	return nil
}
