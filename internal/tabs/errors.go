package tabs

import "errors"

var (
	ErrTabLimit       = errors.New("tab limit reached")
	ErrDuplicateTabID = errors.New("duplicate tab id")
	ErrSelfParent     = errors.New("tab cannot be its own parent")
	ErrNoView         = errors.New("tab has no content view")
)

// ErrorCode classifies a failed main-frame load.
type ErrorCode int

const (
	ErrorUnknown               ErrorCode = -1
	ErrorHostLookup            ErrorCode = -2
	ErrorUnsupportedAuthScheme ErrorCode = -3
	ErrorAuthentication        ErrorCode = -4
	ErrorProxyAuthentication   ErrorCode = -5
	ErrorConnect               ErrorCode = -6
	ErrorIO                    ErrorCode = -7
	ErrorTimeout               ErrorCode = -8
	ErrorRedirectLoop          ErrorCode = -9
	ErrorUnsupportedScheme     ErrorCode = -10
	ErrorFailedSSLHandshake    ErrorCode = -11
	ErrorBadURL                ErrorCode = -12
	ErrorFile                  ErrorCode = -13
	ErrorFileNotFound          ErrorCode = -14
	ErrorTooManyRequests       ErrorCode = -15
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorHostLookup:
		return "host_lookup"
	case ErrorUnsupportedAuthScheme:
		return "unsupported_auth_scheme"
	case ErrorAuthentication:
		return "authentication"
	case ErrorProxyAuthentication:
		return "proxy_authentication"
	case ErrorConnect:
		return "connect"
	case ErrorIO:
		return "io"
	case ErrorTimeout:
		return "timeout"
	case ErrorRedirectLoop:
		return "redirect_loop"
	case ErrorUnsupportedScheme:
		return "unsupported_scheme"
	case ErrorFailedSSLHandshake:
		return "failed_ssl_handshake"
	case ErrorBadURL:
		return "bad_url"
	case ErrorFile:
		return "file"
	case ErrorFileNotFound:
		return "file_not_found"
	case ErrorTooManyRequests:
		return "too_many_requests"
	default:
		return "unknown"
	}
}

// rendersInline reports whether the engine shows its own error page for the
// code, in which case nothing is queued on the tab.
func (c ErrorCode) rendersInline() bool {
	switch c {
	case ErrorHostLookup, ErrorConnect, ErrorBadURL, ErrorUnsupportedScheme, ErrorFile:
		return true
	}
	return false
}

const (
	FileErrorTitle    = "File"
	NetworkErrorTitle = "Network"
)

// LoadError is a queued, user-visible load failure.
type LoadError struct {
	Code        ErrorCode
	Title       string
	Description string
}
