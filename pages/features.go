package pages

import (
	"errors"
	"html/template"
	"io"
	"strconv"

	"cattlecloud.net/go/bizdash/ui"
)

var (
	ErrUnknownTab = errors.New("pages: unknown tab")
)

// Tab identifies a section of the finance dashboard.
type Tab int

const (
	TabLedger Tab = iota
	TabVendors
	TabExpenses
	TabReports
)

var tabs = map[Tab]string{
	TabLedger:   "ledger",
	TabVendors:  "vendors",
	TabExpenses: "expenses",
	TabReports:  "reports",
}

func (t Tab) String() string {
	if name, exists := tabs[t]; exists {
		return name
	}
	return "unknown"
}

// ParseTab converts the name of a tab into a Tab.
func ParseTab(s string) (Tab, error) {
	for tab, name := range tabs {
		if name == s {
			return tab, nil
		}
	}
	return 0, ErrUnknownTab
}

// ExpenseParams are the inputs of the expense manager. A nil EmployeeID
// means no user is signed in.
type ExpenseParams struct {
	EmployeeID *string
	IsAdmin    bool
}

// FinanceParams are the inputs of the finance dashboard.
type FinanceParams struct {
	InitialTab Tab
}

// PayslipParams are the inputs of the payslip view.
type PayslipParams struct {
	PayslipID string
}

// ExpenseManager renders expense management for an employee, or for every
// employee when IsAdmin. It decides for itself what to show to whom.
type ExpenseManager interface {
	Render(io.Writer, ExpenseParams) error
}

// FinanceDashboard renders the finance dashboard opened on a tab.
type FinanceDashboard interface {
	Render(io.Writer, FinanceParams) error
}

// PayslipView renders a single payslip.
type PayslipView interface {
	Render(io.Writer, PayslipParams) error
}

// Features groups the feature components pages delegate to.
type Features struct {
	Expenses ExpenseManager
	Finance  FinanceDashboard
	Payslips PayslipView
}

// Placeholders returns Features rendering loading placeholders in the shape
// of each feature, used until real components are mounted.
func Placeholders() Features {
	return Features{
		Expenses: placeholderExpenses{},
		Finance:  placeholderFinance{},
		Payslips: placeholderPayslip{},
	}
}

var frame = template.Must(template.New("frame").Parse(
	`<section class="feature" data-feature="{{.Feature}}"` +
		`{{with .EmployeeID}} data-employee-id="{{.}}"{{end}}` +
		`{{with .Admin}} data-admin="{{.}}"{{end}}` +
		`{{with .Tab}} data-initial-tab="{{.}}"{{end}}` +
		`{{with .PayslipID}} data-payslip-id="{{.}}"{{end}}>
<h1 class="text-xl font-semibold">{{.Heading}}</h1>
{{range .Rows}}{{.}}
{{end}}</section>
`))

type framed struct {
	Feature    string
	Heading    string
	EmployeeID string
	Admin      string
	Tab        string
	PayslipID  string
	Rows       []template.HTML
}

func rows(n int, label string) []template.HTML {
	out := make([]template.HTML, 0, n+1)
	out = append(out, ui.Skeleton(ui.SkeletonOptions{Class: "h-8 w-1/3", Label: label}))
	for range n {
		out = append(out, ui.Skeleton(ui.SkeletonOptions{Class: "h-4 w-full"}))
	}
	return out
}

type placeholderExpenses struct{}

func (placeholderExpenses) Render(w io.Writer, p ExpenseParams) error {
	f := framed{
		Feature: "expense-manager",
		Heading: "Expenses",
		Admin:   strconv.FormatBool(p.IsAdmin),
		Rows:    rows(5, "Loading expenses"),
	}
	if p.EmployeeID != nil {
		f.EmployeeID = *p.EmployeeID
	}
	return frame.Execute(w, f)
}

type placeholderFinance struct{}

func (placeholderFinance) Render(w io.Writer, p FinanceParams) error {
	return frame.Execute(w, framed{
		Feature: "finance-dashboard",
		Heading: "Finance",
		Tab:     p.InitialTab.String(),
		Rows:    rows(8, "Loading "+p.InitialTab.String()),
	})
}

type placeholderPayslip struct{}

func (placeholderPayslip) Render(w io.Writer, p PayslipParams) error {
	return frame.Execute(w, framed{
		Feature:   "payslip-view",
		Heading:   "Payslip",
		PayslipID: p.PayslipID,
		Rows:      rows(4, "Loading payslip"),
	})
}
