package pages

import (
	"net/http"

	"cattlecloud.net/go/bizdash/middles"
)

// Routes registers every dashboard route on a new ServeMux. The sign-in page
// and sign-in attempts pass through limiter; metrics is served at /metrics
// when not nil.
func Routes(p *Pages, a *Auth, limiter *middles.RateLimiter, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", p.Index)
	mux.HandleFunc("GET "+PathLedger, p.Ledger)
	mux.HandleFunc("GET "+PathVendors, p.Vendors)
	mux.HandleFunc("GET "+PathExpenses, p.Expenses)
	mux.HandleFunc("GET "+PathPayslip, p.Payslip)

	mux.Handle("GET "+PathLogin, limiter.Wrap(http.HandlerFunc(a.LoginPage)))
	mux.Handle("POST "+PathLogin, limiter.Wrap(http.HandlerFunc(a.Login)))
	mux.HandleFunc("POST "+PathLogout, a.Logout)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return mux
}
