package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

// ErrPageRender indicates the page template failed to execute.
var ErrPageRender = errors.New("page rendering failed")

// DefaultSiteName is appended to page titles.
const DefaultSiteName = "Phasor"

// Page describes a standalone HTML page around a rendered fragment.
type Page struct {
	Title string
	// Heading is shown above the body; empty hides it.
	Heading string
	Lang    string
	// Styles are inlined as <style> blocks, in order.
	Styles []string
	// Stylesheets are linked by URL, in order.
	Stylesheets []string
	Body        string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- range .Stylesheets}}
<link rel="stylesheet" href="{{.}}">
{{- end}}
{{- range .Styles}}
<style>{{.}}</style>
{{- end}}
</head>
<body>
{{- if .Heading}}
<h1 id="docTitle">{{.Heading}}</h1>
{{- end}}
<main id="main_md">
{{.Body}}
</main>
</body>
</html>
`))

type pageData struct {
	Title       string
	Heading     string
	Lang        string
	Styles      []template.CSS
	Stylesheets []string
	Body        template.HTML
}

// RenderPage wraps p.Body, which must already be trusted HTML, in a complete
// HTML5 document.
func RenderPage(p Page) (string, error) {
	data := pageData{
		Title:       p.Title,
		Heading:     p.Heading,
		Lang:        p.Lang,
		Stylesheets: p.Stylesheets,
		Body:        template.HTML(p.Body),
	}
	if data.Lang == "" {
		data.Lang = "en"
	}
	for _, css := range p.Styles {
		data.Styles = append(data.Styles, template.CSS(sanitizeCSS(css)))
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPageRender, err)
	}
	return buf.String(), nil
}

// PageTitle returns "<name> | <site>", falling back to "Document | <site>".
func PageTitle(name, site string) string {
	if site == "" {
		site = DefaultSiteName
	}
	if strings.TrimSpace(name) == "" {
		name = "Document"
	}
	return name + " | " + site
}

// sanitizeCSS escapes sequences that could close a <style> block early.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
