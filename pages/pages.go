// Package pages composes the dashboard routes out of the session, the root
// layout and the feature components.
package pages

import (
	"bytes"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"cattlecloud.net/go/bizdash"
	"cattlecloud.net/go/bizdash/middles"
	"cattlecloud.net/go/bizdash/middles/identity"
	"cattlecloud.net/go/bizdash/middles/oauth/nonces"
	"cattlecloud.net/go/bizdash/ui"
)

const (
	PathLedger   = "/finance/ledger"
	PathVendors  = "/finance/vendors"
	PathExpenses = "/finance/expenses"
	PathPayslip  = "/payroll/payslip/{id}"
	PathLogin    = "/login"
	PathLogout   = "/logout"
)

// Recorder receives counts of page renders and sign-in outcomes; see
// metrics.Metrics.
type Recorder interface {
	PageView(page, access string)
	SignIn(outcome string)
}

// Pages serves the role-gated dashboard pages. Pages read the session and
// hand the derived authorization to the feature components; they do not
// deny access themselves.
type Pages struct {
	Layout   *ui.Layout
	Features Features
	Nonces   nonces.Mint
	Metrics  Recorder
	Logger   *slog.Logger
}

type view struct {
	name    string
	title   string
	path    string
	session identity.Session
	access  identity.Access
	body    func(io.Writer) error
}

func (p *Pages) current(r *http.Request) (identity.Session, identity.Access) {
	session := middles.GetSession(r).Get()
	return session, identity.Decide(session)
}

// Expenses derives the employee identifier and admin flag from the session
// and hands them to the expense manager.
func (p *Pages) Expenses(w http.ResponseWriter, r *http.Request) {
	session, access := p.current(r)

	params := ExpenseParams{IsAdmin: access.IsAdmin()}
	if id, ok := access.EmployeeID(); ok {
		params.EmployeeID = &id
	}

	p.render(w, r, view{
		name:    "expenses",
		title:   "Expenses",
		path:    PathExpenses,
		session: session,
		access:  access,
		body: func(w io.Writer) error {
			return p.Features.Expenses.Render(w, params)
		},
	})
}

// Ledger opens the finance dashboard on the ledger tab.
func (p *Pages) Ledger(w http.ResponseWriter, r *http.Request) {
	p.finance(w, r, TabLedger, "Ledger", PathLedger)
}

// Vendors opens the finance dashboard on the vendors tab.
func (p *Pages) Vendors(w http.ResponseWriter, r *http.Request) {
	p.finance(w, r, TabVendors, "Vendors", PathVendors)
}

func (p *Pages) finance(w http.ResponseWriter, r *http.Request, tab Tab, title, path string) {
	session, access := p.current(r)

	p.render(w, r, view{
		name:    tab.String(),
		title:   title,
		path:    path,
		session: session,
		access:  access,
		body: func(w io.Writer) error {
			return p.Features.Finance.Render(w, FinanceParams{InitialTab: tab})
		},
	})
}

// Payslip passes the payslip identifier from the path through to the
// payslip view, as given.
func (p *Pages) Payslip(w http.ResponseWriter, r *http.Request) {
	session, access := p.current(r)
	id := r.PathValue("id")

	p.Logger.InfoContext(r.Context(), "payslip view",
		"payslip_id", id,
		"request_id", middles.RequestID(r.Context()),
	)

	p.render(w, r, view{
		name:    "payslip",
		title:   "Payslip",
		path:    "/payroll/payslip/" + id,
		session: session,
		access:  access,
		body: func(w io.Writer) error {
			return p.Features.Payslips.Render(w, PayslipParams{PayslipID: id})
		},
	})
}

// Index sends visitors of the site root to the ledger.
func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, PathLedger, http.StatusSeeOther)
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, v view) {
	var body bytes.Buffer
	if err := v.body(&body); err != nil {
		p.Logger.ErrorContext(r.Context(), "feature render failed", "page", v.name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var nonce string
	if v.session.Authenticated() {
		nonce = p.Nonces.Create().Unveil()
	}

	var doc bytes.Buffer
	err := p.Layout.Render(&doc, ui.Page{
		Title:   v.title,
		Current: v.path,
		Session: v.session,
		Nonce:   nonce,
		SignIn:  bizdash.CreateURL("", PathLogin, map[string]string{"next": v.path}).String(),
		Body:    template.HTML(body.String()),
	})
	if err != nil {
		p.Logger.ErrorContext(r.Context(), "layout render failed", "page", v.name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	p.headers(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Bytes())

	p.Metrics.PageView(v.name, v.access.Kind.String())
}

func (p *Pages) headers(w http.ResponseWriter) {
	origins := make([]string, 0, len(p.Layout.Scripts))
	for _, script := range p.Layout.Scripts {
		if origin := bizdash.SchemeHost(script); origin != "" {
			origins = append(origins, origin)
		}
	}

	bizdash.SetContentType(w, bizdash.ContentTypeHTML)
	bizdash.SetNoStore(w)
	bizdash.SetRobotsTag(w, bizdash.RobotsNoIndex)
	bizdash.SetSecurityHeaders(w, origins...)
}
