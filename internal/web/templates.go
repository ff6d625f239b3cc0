package web

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/rcliao/reunify/internal/letter"
	"github.com/rcliao/reunify/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var funcs = template.FuncMap{
	"media":      mediaSrc,
	"paragraphs": func(s string) []letter.Paragraph { return letter.Paragraphs(s) },
	"dict":       dict,
}

// dict builds a map from alternating keys and values for sub-templates.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

// mediaSrc marks an embedded image or audio payload as safe for a src
// attribute. Anything else renders as an empty source.
func mediaSrc(v any) template.URL {
	var s string
	switch d := v.(type) {
	case model.DataURL:
		s = d.String()
	case string:
		s = d
	default:
		return ""
	}
	d, err := model.ParseDataURL(s)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(d.MIMEType, "image/") && !strings.HasPrefix(d.MIMEType, "audio/") {
		return ""
	}
	return template.URL(d.String())
}

var pageNames = []string{"landing", "editor", "shared"}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}
