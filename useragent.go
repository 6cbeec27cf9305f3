package bizdash

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/mileusna/useragent"
)

// Origin contains request origination context from parsing request headers.
type Origin struct {
	Method    string
	Host      string
	Address   string
	Forward   string
	Reference string
	UserAgent useragent.UserAgent
}

// From returns a parsed version of the Referer headers, including the domain
// and path without the protocol or query.
func (o *Origin) From() string {
	if o.Reference == "" {
		return "-"
	}

	u, err := url.Parse(o.Reference)
	if err != nil {
		return "-"
	}
	return u.Host + u.Path
}

// String returns the parsed user agent, including only the name and type of
// device being used (or bot).
func (o *Origin) String() string {
	var mode string
	switch {
	case o.UserAgent.Bot:
		mode = "bot"
	case o.UserAgent.Mobile:
		mode = "phone"
	case o.UserAgent.Tablet:
		mode = "tablet"
	case o.UserAgent.Desktop:
		mode = "desktop"
	default:
		mode = "unknown"
	}
	return o.UserAgent.Name + "/" + mode
}

// Client returns the best guess at the address of the client; the first
// X-Forwarded-For entry when present, otherwise the connection address. The
// header is supplied by the client, so the result is only fit for logging.
func (o *Origin) Client() string {
	if o.Forward != "" {
		first, _, _ := strings.Cut(o.Forward, ",")
		return strings.TrimSpace(first)
	}
	return o.Address
}

// Peer returns the address of the client as vouched for by the proxies in
// trusted. X-Forwarded-For is only consulted when the connection comes from a
// trusted proxy, and is walked from the right until the first entry not
// itself a trusted proxy.
func (o *Origin) Peer(trusted []netip.Prefix) string {
	if !contains(trusted, o.Address) {
		return o.Address
	}

	peer := o.Address
	hops := strings.Split(o.Forward, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		peer = hop
		if !contains(trusted, hop) {
			break
		}
	}
	return peer
}

func contains(prefixes []netip.Prefix, address string) bool {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// LogValue implements slog.LogValuer.
func (o *Origin) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client", o.Client()),
		slog.String("agent", o.String()),
		slog.String("from", o.From()),
	)
}

// Origins parses the request headers to get information about the origins of
// the request, including ...
//
// - Referer
// - User-Agent
// - X-Forwarded-For
func Origins(r *http.Request) *Origin {
	method := strings.ToUpper(r.Method)
	reference := r.Header.Get("Referer")
	agent := r.Header.Get("User-Agent")
	forward := r.Header.Get("X-Forwarded-For")
	ua := useragent.Parse(agent)

	address, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		address = r.RemoteAddr
	}

	return &Origin{
		Method:    method,
		Host:      r.Host,
		Address:   address,
		Forward:   forward,
		Reference: reference,
		UserAgent: ua,
	}
}
