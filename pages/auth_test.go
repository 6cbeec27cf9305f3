package pages

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cattlecloud.net/go/bizdash/middles"
	"github.com/shoenig/test/must"
)

func post(path string, form url.Values, cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func (h *harness) loginNonce(t *testing.T) string {
	t.Helper()

	w := h.get(PathLogin, nil)
	must.Eq(t, http.StatusOK, w.Code)

	nonce := document(t, w).Find(`form[action="/login"] input[name="nonce"]`).AttrOr("value", "")
	must.NotEq(t, "", nonce)
	return nonce
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == "bizdash" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestAuth_login(t *testing.T) {
	t.Parallel()

	c := new(capture)
	h := setup(t, c.features())

	form := url.Values{
		"nonce":    {h.loginNonce(t)},
		"id_token": {"token-ada"},
		"next":     {PathExpenses},
	}
	w := h.do(post(PathLogin, form))
	must.Eq(t, http.StatusSeeOther, w.Code)
	must.Eq(t, PathExpenses, w.Header().Get("Location"))

	// the session of the request tree was replaced
	must.SliceLen(t, 1, *h.changes)
	must.Eq(t, "u1", (*h.changes)[0].User.ID)
	must.Eq(t, []string{OutcomeSuccess}, h.metrics.signIns)

	// the cookie establishes the session of later requests
	r := httptest.NewRequest(http.MethodGet, PathExpenses, nil)
	r.AddCookie(sessionCookie(t, w))
	must.Eq(t, http.StatusOK, h.do(r).Code)

	must.SliceLen(t, 1, c.expenses)
	must.Eq(t, "u1", *c.expenses[0].EmployeeID)
}

func TestAuth_login_offsiteNext(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	form := url.Values{
		"nonce":    {h.loginNonce(t)},
		"id_token": {"token-ada"},
		"next":     {"//evil.example.com/"},
	}
	w := h.do(post(PathLogin, form))
	must.Eq(t, http.StatusSeeOther, w.Code)
	must.Eq(t, PathLedger, w.Header().Get("Location"))
}

func TestAuth_login_badNonce(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	form := url.Values{"nonce": {"forged"}, "id_token": {"token-ada"}}
	w := h.do(post(PathLogin, form))
	must.Eq(t, http.StatusBadRequest, w.Code)
	must.SliceEmpty(t, *h.changes)
	must.Eq(t, []string{OutcomeBadNonce}, h.metrics.signIns)
}

func TestAuth_login_nonceSingleUse(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	form := url.Values{"nonce": {h.loginNonce(t)}, "id_token": {"token-ada"}}
	must.Eq(t, http.StatusSeeOther, h.do(post(PathLogin, form)).Code)
	must.Eq(t, http.StatusBadRequest, h.do(post(PathLogin, form)).Code)
}

func TestAuth_login_badToken(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	form := url.Values{"nonce": {h.loginNonce(t)}, "id_token": {"garbage"}}
	w := h.do(post(PathLogin, form))
	must.Eq(t, http.StatusUnauthorized, w.Code)
	must.SliceEmpty(t, w.Result().Cookies())
	must.Eq(t, []string{OutcomeBadToken}, h.metrics.signIns)
}

func TestAuth_login_unknownUser(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	form := url.Values{"nonce": {h.loginNonce(t)}, "id_token": {"token-eve"}}
	w := h.do(post(PathLogin, form))
	must.Eq(t, http.StatusForbidden, w.Code)
	must.SliceEmpty(t, *h.changes)
	must.Eq(t, []string{OutcomeUnknownUser}, h.metrics.signIns)
}

func TestAuth_login_disabled(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())
	h.auth.Verifier = nil

	w := h.get(PathLogin, nil)
	doc := document(t, w)
	must.Eq(t, 1, doc.Find("p.disabled").Length())
	must.Eq(t, 0, doc.Find(`form[action="/login"]`).Length())

	form := url.Values{"nonce": {h.auth.Pages.Nonces.Create().Unveil()}, "id_token": {"token-ada"}}
	must.Eq(t, http.StatusServiceUnavailable, h.do(post(PathLogin, form)).Code)
}

func TestAuth_loginPage_signedIn(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	w := h.get(PathLogin, employee)
	must.Eq(t, http.StatusSeeOther, w.Code)
	must.Eq(t, PathLedger, w.Header().Get("Location"))
}

func TestAuth_logout(t *testing.T) {
	t.Parallel()

	c := new(capture)
	h := setup(t, c.features())

	cookie := h.sessions.Create(admin.ID, time.Hour)

	// the logout form of a rendered page carries the nonce
	page := httptest.NewRequest(http.MethodGet, PathLedger, nil)
	page.AddCookie(cookie)
	nonce := document(t, h.do(page)).Find(`form[action="/logout"] input[name="nonce"]`).AttrOr("value", "")
	must.NotEq(t, "", nonce)

	w := h.do(post(PathLogout, url.Values{"nonce": {nonce}}, cookie))
	must.Eq(t, http.StatusSeeOther, w.Code)
	must.Eq(t, PathLogin, w.Header().Get("Location"))
	must.Negative(t, sessionCookie(t, w).MaxAge)

	must.SliceLen(t, 1, *h.changes)
	must.False(t, (*h.changes)[0].Authenticated())
	must.Eq(t, []string{OutcomeSignOut}, h.metrics.signIns)

	// the revoked cookie no longer establishes a session
	r := httptest.NewRequest(http.MethodGet, PathExpenses, nil)
	r.AddCookie(cookie)
	must.Eq(t, http.StatusOK, h.do(r).Code)
	must.SliceLen(t, 1, c.expenses)
	must.Nil(t, c.expenses[0].EmployeeID)
}

func TestAuth_logout_badNonce(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	cookie := h.sessions.Create(admin.ID, time.Hour)
	w := h.do(post(PathLogout, url.Values{"nonce": {"forged"}}, cookie))
	must.Eq(t, http.StatusBadRequest, w.Code)
	must.SliceEmpty(t, *h.changes)
}

func TestAuth_logout_evictedNonce(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	cookie := h.sessions.Create(admin.ID, time.Hour)

	page := httptest.NewRequest(http.MethodGet, PathLedger, nil)
	page.AddCookie(cookie)
	nonce := document(t, h.do(page)).Find(`form[action="/logout"] input[name="nonce"]`).AttrOr("value", "")
	must.NotEq(t, "", nonce)

	// other visitors fill the mint past its capacity
	for range 100 {
		_ = h.auth.Pages.Nonces.Create()
	}

	r := post(PathLogout, url.Values{"nonce": {nonce}}, cookie)
	r.Header.Set("Origin", "http://example.com")
	w := h.do(r)
	must.Eq(t, http.StatusSeeOther, w.Code)
	must.Negative(t, sessionCookie(t, w).MaxAge)
	must.SliceLen(t, 1, *h.changes)
	must.False(t, (*h.changes)[0].Authenticated())

	// the token was revoked
	after := httptest.NewRequest(http.MethodGet, PathLogin, nil)
	after.AddCookie(cookie)
	must.Eq(t, http.StatusOK, h.do(after).Code)
}

func TestAuth_logout_crossSite(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())

	cookie := h.sessions.Create(admin.ID, time.Hour)

	r := post(PathLogout, url.Values{"nonce": {"stale"}}, cookie)
	r.Header.Set("Origin", "https://elsewhere.example")
	must.Eq(t, http.StatusBadRequest, h.do(r).Code)

	r = post(PathLogout, url.Values{"nonce": {"stale"}}, cookie)
	r.Header.Set("Referer", "https://elsewhere.example/finance/ledger")
	must.Eq(t, http.StatusBadRequest, h.do(r).Code)

	must.SliceEmpty(t, *h.changes)
}

func TestSameOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		headers map[string]string
		exp     bool
	}{
		{"No headers", nil, false},
		{"Origin matches", map[string]string{"Origin": "http://example.com"}, true},
		{"Origin differs", map[string]string{"Origin": "https://example.org"}, false},
		{"Null origin with referer", map[string]string{"Origin": "null", "Referer": "http://example.com/finance/ledger"}, true},
		{"Referer differs", map[string]string{"Referer": "https://example.org/finance/ledger"}, false},
		{"Relative referer", map[string]string{"Referer": "/finance/ledger"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, PathLogout, nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			must.Eq(t, tc.exp, sameOrigin(r))
		})
	}
}

func TestRoutes_loginRateLimited(t *testing.T) {
	t.Parallel()

	h := setup(t, Placeholders())
	mux := Routes(h.auth.Pages, h.auth, middles.NewRateLimiter(0.001, 2), nil)

	request := func(method, forwarded string) int {
		var r *http.Request
		if method == http.MethodPost {
			r = post(PathLogin, url.Values{"nonce": {"n"}, "id_token": {"token-ada"}})
		} else {
			r = httptest.NewRequest(method, PathLogin, nil)
		}
		r.RemoteAddr = "203.0.113.9:40000"
		r.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		return w.Code
	}

	must.Eq(t, http.StatusOK, request(http.MethodGet, "10.9.0.1"))
	must.Eq(t, http.StatusBadRequest, request(http.MethodPost, "10.9.0.2"))
	must.Eq(t, http.StatusTooManyRequests, request(http.MethodGet, "10.9.0.3"))
	must.Eq(t, http.StatusTooManyRequests, request(http.MethodPost, "10.9.0.4"))
}
