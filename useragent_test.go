package bizdash

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/mileusna/useragent"
	"github.com/shoenig/test/must"
)

func TestOrigin_From(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		reference string
		exp       string
	}{
		{"Empty reference", "", "-"},
		{"Standard URL", "https://example.com/finance/ledger", "example.com/finance/ledger"},
		{"URL with query", "http://example.com/finance/ledger?page=2", "example.com/finance/ledger"},
		{"URL with fragment", "https://example.com/payroll/payslip/PS-1001#net", "example.com/payroll/payslip/PS-1001"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Origin{Reference: tc.reference}
			must.Eq(t, tc.exp, o.From())
		})
	}
}

func TestOrigin_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		userAgent useragent.UserAgent
		want      string
	}{
		{"Bot", useragent.UserAgent{Name: "Googlebot", Bot: true}, "Googlebot/bot"},
		{"Mobile", useragent.UserAgent{Name: "Safari", Mobile: true}, "Safari/phone"},
		{"Tablet", useragent.UserAgent{Name: "Chrome", Tablet: true}, "Chrome/tablet"},
		{"Desktop", useragent.UserAgent{Name: "Firefox", Desktop: true}, "Firefox/desktop"},
		{"Unknown", useragent.UserAgent{Name: "MyBrowser"}, "MyBrowser/unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Origin{UserAgent: tc.userAgent}
			must.Eq(t, tc.want, o.String())
		})
	}
}

func TestOrigin_Client(t *testing.T) {
	t.Parallel()

	must.Eq(t, "10.1.1.1", (&Origin{Forward: "10.1.1.1, 172.16.0.1", Address: "127.0.0.1"}).Client())
	must.Eq(t, "127.0.0.1", (&Origin{Address: "127.0.0.1"}).Client())
}

func TestOrigin_Peer(t *testing.T) {
	t.Parallel()

	proxies := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
	}

	cases := []struct {
		name    string
		address string
		forward string
		trusted []netip.Prefix
		exp     string
	}{
		{"No proxies trusted", "203.0.113.9", "10.9.0.1", nil, "203.0.113.9"},
		{"Untrusted connection", "203.0.113.9", "198.51.100.4", proxies, "203.0.113.9"},
		{"Trusted proxy", "10.0.0.2", "198.51.100.4", proxies, "198.51.100.4"},
		{"Forged left entries", "10.0.0.2", "1.2.3.4, 198.51.100.4", proxies, "198.51.100.4"},
		{"Proxy chain", "10.0.0.2", "198.51.100.4, 192.168.1.7", proxies, "198.51.100.4"},
		{"Only proxies", "10.0.0.2", "10.0.0.3", proxies, "10.0.0.3"},
		{"Garbage entry", "10.0.0.2", "198.51.100.4, bogus", proxies, "10.0.0.2"},
		{"No header", "10.0.0.2", "", proxies, "10.0.0.2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Origin{Address: tc.address, Forward: tc.forward}
			must.Eq(t, tc.exp, o.Peer(tc.trusted))
		})
	}
}

func TestOrigins(t *testing.T) {
	t.Parallel()

	agent := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
	r := httptest.NewRequest(http.MethodPost, "https://example.org/login", nil)
	r.Header.Set("X-Forwarded-For", "10.1.1.1")
	r.Header.Set("Referer", "https://example.org/finance/ledger")
	r.Header.Set("User-Agent", agent)

	origin := Origins(r)

	must.Eq(t, "POST", origin.Method)
	must.Eq(t, "example.org", origin.Host)
	must.Eq(t, "10.1.1.1", origin.Forward)
	must.Eq(t, "192.0.2.1", origin.Address)
	must.Eq(t, "https://example.org/finance/ledger", origin.Reference)
	must.Eq(t, "Chrome", origin.UserAgent.Name)
}
