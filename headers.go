package bizdash

import (
	"net/http"
)

// MIMEType are correct identifier strings for various MIME types.
//
// Consider using one of the pre-defined types.
type MIMEType string

const (
	ContentTypeHTML MIMEType = "text/html; charset=utf-8"
	ContentTypeText MIMEType = "text/plain; charset=utf-8"
)

// SetContentType sets the Content-Type header on w to the given MIME
// compatible content type string.
func SetContentType(w http.ResponseWriter, filetype MIMEType) {
	w.Header().Set("Content-Type", string(filetype))
}

// RobotIndex are correct sentinel values for indicating whether a page
// should be indexed, as set in the X-Robots-Tag HTTP response header.
//
// Consider using one of the pre-defined types.
type RobotIndex string

const (
	RobotsNoIndex  RobotIndex = "noindex"
	RobotsYesIndex RobotIndex = "all"
)

// SetRobotsTag to a crawl control value (e.g. noindex)
func SetRobotsTag(w http.ResponseWriter, instruction RobotIndex) {
	w.Header().Set("X-Robots-Tag", string(instruction))
}

// SetNoStore prevents w from being cached anywhere; pages rendered for a
// session must never be served to another.
func SetNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, private")
}

// SetSecurityHeaders sets the baseline security headers for dashboard pages.
//
// Scripts are allowed from self and the given origins, e.g. the origin of the
// upload widget.
func SetSecurityHeaders(w http.ResponseWriter, scriptOrigins ...string) {
	csp := "default-src 'self'; frame-ancestors 'none'; script-src 'self'"
	for _, origin := range scriptOrigins {
		csp += " " + origin
	}

	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Security-Policy", csp)
}
