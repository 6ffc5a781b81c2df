package device

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (unreachable host, reset, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates the device did not answer in time
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing is listening on the device port
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates the address is a hostname that did not resolve
	ErrTypeDNS
	// ErrTypeAddress indicates the address could not form a request URL
	ErrTypeAddress
	// ErrTypeHTTP indicates the device answered with a non-success status
	ErrTypeHTTP
	// ErrTypeParse indicates a response body could not be decoded
	ErrTypeParse
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeAddress:
		return "Invalid Address"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// RequestError is returned by the synchronous client calls. The fire-and-forget
// pixel path only logs it.
type RequestError struct {
	Type       ErrorType
	Message    string
	Address    string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error to a RequestError.
func ClassifyNetworkError(err error, address string) *RequestError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &RequestError{Type: ErrTypeTimeout, Message: "device did not respond in time", Address: address, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &RequestError{
			Type:    ErrTypeDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Address: address,
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &RequestError{Type: ErrTypeConnectionRefused, Message: "device refused connection", Address: address, Err: err}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &RequestError{Type: ErrTypeNetwork, Message: "host unreachable", Address: address, Err: err}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &RequestError{Type: ErrTypeNetwork, Message: "network unreachable", Address: address, Err: err}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return ClassifyNetworkError(urlErr.Err, address)
	}

	return &RequestError{Type: ErrTypeNetwork, Message: "network error occurred", Address: address, Err: err}
}

// NewAddressError reports an address that cannot be turned into a request.
func NewAddressError(address string, err error) *RequestError {
	return &RequestError{
		Type:    ErrTypeAddress,
		Message: fmt.Sprintf("cannot build request for address %q", address),
		Address: address,
		Err:     err,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(address string, statusCode int) *RequestError {
	return &RequestError{
		Type:       ErrTypeHTTP,
		Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		Address:    address,
		StatusCode: statusCode,
	}
}

// NewParseError creates a parsing error
func NewParseError(address, message string, err error) *RequestError {
	return &RequestError{Type: ErrTypeParse, Message: message, Address: address, Err: err}
}

func typeOf(err error) (ErrorType, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Type, true
	}
	return 0, false
}

// IsNetworkError reports network-level failures, including timeouts,
// refused connections and DNS errors.
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsHTTPError checks if an error is an HTTP status error
func IsHTTPError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHTTP
}

// IsAddressError checks if an error comes from an unusable address
func IsAddressError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeAddress
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeParse
}

// TroubleshootingHint returns user-facing advice for a failed CLI call.
func TroubleshootingHint(err error) string {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch reqErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the matrix is powered and joined to WiFi",
			"  • The ESP8266 serves one request at a time; busy patterns slow it down",
			"  • Try a longer --timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The device refused the connection.",
			"Troubleshooting:",
			"  • Verify the address belongs to the matrix and not another host",
			"  • The device web server listens on port 80",
			"  • Power-cycle the device if it recently crashed",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the device hostname.",
			"Troubleshooting:",
			"  • Use the IPv4 address shown by 'neopixel-ctl scan'",
			"  • mDNS names need a resolver that understands .local",
		}, "\n")

	case ErrTypeAddress:
		return "The address is not usable in a URL. Enter a plain IPv4 address such as 192.168.1.130."

	case ErrTypeHTTP:
		if reqErr.StatusCode == 404 {
			return "The device does not serve this endpoint. Check the firmware version."
		}
		return fmt.Sprintf("The device returned HTTP error %d.", reqErr.StatusCode)

	case ErrTypeParse:
		return "Failed to parse the device response. The firmware may be incompatible."

	default:
		return strings.Join([]string{
			"Network communication failed.",
			"Troubleshooting:",
			"  • Check that you are on the same network as the device",
			"  • Try 'neopixel-ctl ping --device " + reqErr.Address + "'",
		}, "\n")
	}
}
