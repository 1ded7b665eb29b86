package crawler

import "errors"

// Construction faults returned by New. They are wrapped with the offending
// URL, so callers should match them with errors.Is.
var (
	// ErrMissingProtocol means the base URL carries no "scheme://" prefix.
	ErrMissingProtocol = errors.New("base url has no protocol scheme")

	// ErrUnsupportedProtocol means the base URL declares a scheme other than
	// http or https.
	ErrUnsupportedProtocol = errors.New("base url protocol is not supported")

	// ErrInvalidURL means the base URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("base url is invalid")
)
