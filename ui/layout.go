package ui

import (
	"html/template"
	"io"

	"cattlecloud.net/go/bizdash/middles/identity"
)

// Metadata describes the document as a whole.
type Metadata struct {
	Title       string
	Description string
}

// Layout is the root layout shared by every page: document metadata, the
// external scripts loaded at startup, and the navigation chrome.
type Layout struct {
	Metadata Metadata
	Scripts  []string
}

// Page is the content of one page rendered inside the Layout.
type Page struct {
	Title   string // section title, prefixed to the document title
	Current string // path of the page, for highlighting navigation
	Session identity.Session
	Nonce   string // single use token for the sign-out form
	SignIn  string // sign-in link for anonymous visitors, "/login" when empty
	Body    template.HTML
}

type link struct {
	Path  string
	Label string
}

var navigation = []link{
	{"/finance/ledger", "Ledger"},
	{"/finance/vendors", "Vendors"},
	{"/finance/expenses", "Expenses"},
}

var document = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{with .Page.Title}}{{.}} · {{end}}{{.Metadata.Title}}</title>
<meta name="description" content="{{.Metadata.Description}}">
{{range .Scripts}}<script src="{{.}}" defer></script>
{{end}}</head>
<body>
<nav class="flex items-center gap-4 border-b p-4">
<a class="font-semibold" href="/">{{.Metadata.Title}}</a>
{{range .Navigation}}<a href="{{.Path}}"{{if eq .Path $.Page.Current}} aria-current="page"{{end}}>{{.Label}}</a>
{{end}}<span class="ml-auto"></span>
{{with .Page.Session.User}}<span class="user" data-role="{{.Role}}">{{.Display}}</span>
<form method="post" action="/logout"><input type="hidden" name="nonce" value="{{$.Page.Nonce}}"><button type="submit">Sign out</button></form>
{{else}}<a class="sign-in" href="{{or .Page.SignIn "/login"}}">Sign in</a>
{{end}}</nav>
<main class="p-4">
{{.Page.Body}}
</main>
</body>
</html>
`))

// Render writes the complete document for page to w.
func (l *Layout) Render(w io.Writer, page Page) error {
	return document.Execute(w, struct {
		Metadata   Metadata
		Scripts    []string
		Navigation []link
		Page       Page
	}{
		Metadata:   l.Metadata,
		Scripts:    l.Scripts,
		Navigation: navigation,
		Page:       page,
	})
}
