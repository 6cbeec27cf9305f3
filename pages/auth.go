package pages

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cattlecloud.net/go/bizdash"
	"cattlecloud.net/go/bizdash/internal/directory"
	"cattlecloud.net/go/bizdash/middles"
	"cattlecloud.net/go/bizdash/middles/identity"
	"cattlecloud.net/go/bizdash/middles/oauth"
	"cattlecloud.net/go/bizdash/middles/oauth/idtoken"
	"cattlecloud.net/go/bizdash/ui"
	"github.com/shoenig/go-conceal"
)

// Sign-in outcomes, as recorded by Recorder.SignIn.
const (
	OutcomeSuccess     = "success"
	OutcomeBadNonce    = "bad_nonce"
	OutcomeBadToken    = "bad_token"
	OutcomeUnknownUser = "unknown_user"
	OutcomeDisabled    = "disabled"
	OutcomeError       = "error"
	OutcomeSignOut     = "sign_out"
)

// Users finds dashboard users by the email address their identity provider
// vouches for.
type Users interface {
	ByEmail(context.Context, string) (*identity.User, error)
}

// Auth serves sign-in and sign-out, the only flows that change the session
// of a request tree after the provider established it.
type Auth struct {
	Pages *Pages

	// Verifier is nil when no identity provider is configured, in which case
	// sign-in is unavailable.
	Verifier idtoken.Verifier
	Users    Users
	Sessions *oauth.Sessions
	TTL      time.Duration
}

var loginForm = template.Must(template.New("login").Parse(
	`<section class="sign-in mx-auto max-w-md">
<h1 class="text-xl font-semibold">Sign in</h1>
{{if .Enabled}}<form method="post" action="/login">
<input type="hidden" name="nonce" value="{{.Nonce}}">
<input type="hidden" name="next" value="{{.Next}}">
<label for="id_token">Identity token</label>
<textarea id="id_token" name="id_token" required></textarea>
<button type="submit">Continue</button>
</form>
{{else}}<p class="disabled">Sign in is not configured.</p>
{{end}}</section>
`))

// LoginPage renders the sign-in form. Visitors already signed in are sent
// on to the ledger.
func (a *Auth) LoginPage(w http.ResponseWriter, r *http.Request) {
	session := middles.GetSession(r).Get()
	next := bizdash.LocalPath(r.URL.Query().Get("next"), PathLedger)

	if session.Authenticated() {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	var body bytes.Buffer
	err := loginForm.Execute(&body, struct {
		Enabled bool
		Nonce   string
		Next    string
	}{
		Enabled: a.Verifier != nil,
		Nonce:   a.Pages.Nonces.Create().Unveil(),
		Next:    next,
	})
	if err != nil {
		a.Pages.Logger.ErrorContext(r.Context(), "login render failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var doc bytes.Buffer
	if err = a.Pages.Layout.Render(&doc, ui.Page{
		Title:   "Sign in",
		Current: PathLogin,
		Body:    template.HTML(body.String()),
	}); err != nil {
		a.Pages.Logger.ErrorContext(r.Context(), "layout render failed", "page", "login", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	a.Pages.headers(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Bytes())
}

func (a *Auth) fail(w http.ResponseWriter, r *http.Request, code int, outcome string, err error) {
	a.Pages.Logger.WarnContext(r.Context(), "sign in failed",
		"outcome", outcome,
		"origin", bizdash.Origins(r),
		"error", err,
	)
	a.Pages.Metrics.SignIn(outcome)
	http.Error(w, http.StatusText(code), code)
}

// Login exchanges an identity token for a session. On success the session
// cookie is set and the session of the current request tree is replaced.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, r, http.StatusBadRequest, OutcomeBadNonce, err)
		return
	}

	if err := a.Pages.Nonces.Consume(conceal.New(r.PostFormValue("nonce"))); err != nil {
		a.fail(w, r, http.StatusBadRequest, OutcomeBadNonce, err)
		return
	}

	if a.Verifier == nil {
		a.fail(w, r, http.StatusServiceUnavailable, OutcomeDisabled, nil)
		return
	}

	claims, err := a.Verifier.Verify(r.Context(), r.PostFormValue("id_token"))
	if err != nil {
		a.fail(w, r, http.StatusUnauthorized, OutcomeBadToken, err)
		return
	}

	user, err := a.Users.ByEmail(r.Context(), claims.Email)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		a.fail(w, r, http.StatusForbidden, OutcomeUnknownUser, err)
		return
	case err != nil:
		a.fail(w, r, http.StatusInternalServerError, OutcomeError, err)
		return
	case !user.Valid():
		a.fail(w, r, http.StatusForbidden, OutcomeUnknownUser, nil)
		return
	}

	http.SetCookie(w, a.Sessions.Create(user.ID, a.TTL))
	middles.GetSession(r).Set(identity.Session{User: user})

	a.Pages.Logger.InfoContext(r.Context(), "signed in", "user", user.ID, "role", user.Role.String())
	a.Pages.Metrics.SignIn(OutcomeSuccess)

	next := bizdash.LocalPath(r.PostFormValue("next"), PathLedger)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// Logout revokes the session token, if any, and clears the session of the
// current request tree. The form nonce may have been evicted from the mint by
// the time the user signs out, so a request the browser marks as coming from
// this site is accepted without one.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := a.Pages.Nonces.Consume(conceal.New(r.PostFormValue("nonce"))); err != nil {
		if !sameOrigin(r) {
			a.Pages.Logger.WarnContext(r.Context(), "sign out rejected",
				"origin", bizdash.Origins(r),
				"error", err,
			)
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	if content, err := a.Sessions.CookieFactory.Read(r); err == nil {
		a.Sessions.Revoke(content.Token())
	}

	http.SetCookie(w, a.Sessions.CookieFactory.Expire())
	middles.GetSession(r).Set(identity.Session{})
	a.Pages.Metrics.SignIn(OutcomeSignOut)

	http.Redirect(w, r, PathLogin, http.StatusSeeOther)
}

// sameOrigin reports whether the browser marked r as sent from a page of
// this host, by the Origin header or failing that the Referer.
func sameOrigin(r *http.Request) bool {
	source := r.Header.Get("Origin")
	if source == "" || source == "null" {
		source = r.Header.Get("Referer")
	}
	if source == "" {
		return false
	}

	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
