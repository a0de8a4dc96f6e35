package waf

import (
	"html/template"
	"io"
	"strings"
)

// DenialPage renders the HTML body sent with every 403 rejection.
type DenialPage struct {
	template *template.Template
}

// DenialData contains the data passed to the denial page template.
type DenialData struct {
	Reason string
}

// DefaultDenialHTML is the default denial body. The reason is the only
// variable part; it passes through html/template escaping because it can
// embed attacker-controlled request values.
const DefaultDenialHTML = `<h1>403 Forbidden: Access Denied by WAF</h1><p>{{.Reason}}</p>`

// NewDenialPage creates a DenialPage with the default template.
func NewDenialPage() *DenialPage {
	tmpl := template.Must(template.New("denial").Parse(DefaultDenialHTML))
	return &DenialPage{template: tmpl}
}

// NewDenialPageFromTemplate creates a DenialPage from a custom template
// string. The template receives a DenialData value.
func NewDenialPageFromTemplate(templateStr string) (*DenialPage, error) {
	tmpl, err := template.New("denial").Parse(templateStr)
	if err != nil {
		return nil, err
	}
	return &DenialPage{template: tmpl}, nil
}

// NewDenialPageFromFile creates a DenialPage from a template file.
func NewDenialPageFromFile(path string) (*DenialPage, error) {
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, err
	}
	return &DenialPage{template: tmpl}, nil
}

// Render writes the denial page to the given writer.
func (dp *DenialPage) Render(w io.Writer, data DenialData) error {
	return dp.template.Execute(w, data)
}

// RenderString returns the denial page as a string.
func (dp *DenialPage) RenderString(data DenialData) (string, error) {
	var sb strings.Builder
	if err := dp.template.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
