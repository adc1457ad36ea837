package remote

import "strings"

// Relay rewrites the target URL before a request is issued. It lets a
// deployment route traffic through a CORS relay, or straight to the
// endpoint when a same-origin backend makes the relay unnecessary.
type Relay interface {
	Route(target string) string
}

// Direct sends requests to the endpoint unchanged.
type Direct struct{}

// Route returns target unchanged.
func (Direct) Route(target string) string { return target }

// PrefixRelay prepends a relay base URL to the target, the way public
// CORS relays expect.
type PrefixRelay struct {
	Prefix string
}

// Route prepends the relay prefix.
func (r PrefixRelay) Route(target string) string {
	prefix := r.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + target
}

// RelayFor picks Direct for an empty prefix and PrefixRelay otherwise.
func RelayFor(prefix string) Relay {
	if strings.TrimSpace(prefix) == "" {
		return Direct{}
	}
	return PrefixRelay{Prefix: strings.TrimSpace(prefix)}
}
