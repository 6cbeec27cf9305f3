package ui

import (
	"html/template"
	"strings"
)

// SkeletonBase is the fixed styling of every loading placeholder.
const SkeletonBase = "animate-pulse rounded-md bg-muted"

// SkeletonOptions enumerates what callers may configure on a placeholder.
type SkeletonOptions struct {
	// Class is appended to SkeletonBase, e.g. "h-4 w-full".
	Class string

	ID     string
	Label  string // accessible description, e.g. "Loading ledger"
	Width  string // css length, e.g. "12rem"
	Height string // css length
	Hidden bool
}

func (o SkeletonOptions) classes() string {
	extra := strings.TrimSpace(o.Class)
	if extra == "" {
		return SkeletonBase
	}
	return SkeletonBase + " " + extra
}

var skeleton = template.Must(template.New("skeleton").Parse(
	`<div class="{{.Classes}}"` +
		`{{with .ID}} id="{{.}}"{{end}}` +
		` aria-busy="true"` +
		`{{with .Label}} aria-label="{{.}}"{{end}}` +
		`{{if or .Width .Height}} style="{{with .Width}}width: {{.}};{{end}}{{with .Height}}height: {{.}};{{end}}"{{end}}` +
		`{{if .Hidden}} hidden{{end}}></div>`,
))

// Skeleton renders a pulsing placeholder standing in for content that is
// not yet available.
func Skeleton(opts SkeletonOptions) template.HTML {
	var sb strings.Builder
	err := skeleton.Execute(&sb, struct {
		SkeletonOptions
		Classes string
	}{
		SkeletonOptions: opts,
		Classes:         opts.classes(),
	})
	if err != nil {
		// only fails when writing to sb fails, which it cannot
		panic("ui: cannot render skeleton: " + err.Error())
	}
	return template.HTML(sb.String())
}
