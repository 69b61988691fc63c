package tabs

import "strings"

const (
	IncognitoURL   = "browser:incognito"
	newTabTitle    = "New tab"
	incognitoTitle = "New incognito tab"
	loadingTitle   = "Loading…"
)

// SecurityState tracks the trust level of the page currently shown in a tab.
// Within one page load it only moves forward:
// NotSecure -> Secure -> Mixed -> BadCertificate.
type SecurityState int

const (
	SecurityNotSecure SecurityState = iota
	SecuritySecure
	SecurityMixed
	SecurityBadCertificate
)

func (s SecurityState) String() string {
	switch s {
	case SecuritySecure:
		return "secure"
	case SecurityMixed:
		return "mixed"
	case SecurityBadCertificate:
		return "bad_certificate"
	default:
		return "not_secure"
	}
}

// SSLError records the certificate problem the user proceeded past.
type SSLError struct {
	URL    string
	Reason string
}

// PageState is the metadata of one loaded page. It is replaced wholesale on
// navigation.
type PageState struct {
	URL         string
	OriginalURL string
	Title       string
	Favicon     []byte
	Security    SecurityState
	SSLError    *SSLError
	Bookmarked  bool
	Incognito   bool
}

func newPageState(incognito bool) PageState {
	if incognito {
		return PageState{
			URL:         IncognitoURL,
			OriginalURL: IncognitoURL,
			Title:       incognitoTitle,
			Incognito:   true,
		}
	}
	return PageState{Title: newTabTitle}
}

func newPageStateFor(incognito bool, url string, favicon []byte) PageState {
	ps := PageState{
		URL:         url,
		OriginalURL: url,
		Favicon:     favicon,
		Incognito:   incognito,
	}
	if isHTTPS(url) {
		ps.Security = SecuritySecure
	}
	return ps
}

func isHTTPS(url string) bool {
	return strings.HasPrefix(strings.ToLower(url), "https:")
}

// isSecureResource reports whether a sub-resource keeps a secure page secure.
func isSecureResource(url string) bool {
	u := strings.ToLower(url)
	return strings.HasPrefix(u, "https:") ||
		strings.HasPrefix(u, "data:") ||
		strings.HasPrefix(u, "about:")
}

// filteredURL hides internal placeholder urls from callers.
func filteredURL(url string) string {
	if url == IncognitoURL || strings.HasPrefix(url, "browser:") {
		return ""
	}
	return url
}
