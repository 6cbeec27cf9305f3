package bizdash

import "net/url"

// CreateURL creates a *url.URL from the given origin, path, and request
// parameters that has been properly encoded and formatted.
//
// origin must be valid; an invalid url will panic.
func CreateURL(origin, path string, params map[string]string) *url.URL {
	u, err := url.Parse(origin)
	if err != nil {
		// incoming resource URL should be known at startup.
		panic("bizdash: cannot parse url " + origin)
	}

	u.Path = path

	// set the query parameters
	query := make(url.Values, len(params))
	for k, v := range params {
		query.Add(k, v)
	}
	u.RawQuery = query.Encode()
	return u
}

// SchemeHost returns the scheme and host of raw, e.g. for allowing a script
// source in a content security policy. An unparsable url returns "".
func SchemeHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// LocalPath returns next when it is a path on this site, otherwise fallback.
// Used for post sign-in redirects so they cannot leave the site.
func LocalPath(next, fallback string) string {
	u, err := url.Parse(next)
	switch {
	case err != nil:
		return fallback
	case next == "" || u.IsAbs() || u.Host != "":
		return fallback
	case len(next) > 1 && (next[1] == '/' || next[1] == '\\'):
		return fallback
	case next[0] != '/':
		return fallback
	default:
		return next
	}
}
