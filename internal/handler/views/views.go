// Package views renders the HTML pages. Templates are embedded and parsed
// once; each render binds the translation and request helpers to the
// request context.
package views

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"

	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(f, "templates/"), ".html")
		t, err := template.New("layout.html").
			Funcs(staticFuncs).
			Funcs(requestFuncs(context.Background())).
			ParseFS(templateFS, layoutFile, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes page into w. Nothing is written if the template fails.
func (r *Renderer) Render(ctx context.Context, w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	t, err := t.Clone()
	if err != nil {
		return err
	}
	t.Funcs(requestFuncs(ctx))

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

func requestFuncs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t":  func(id string) string { return appI18n.T(ctx, id) },
		"tp": func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				data[fmt.Sprint(kv[i])] = kv[i+1]
			}
			return appI18n.Td(ctx, id, data)
		},
		"lang": func() string { return appI18n.Lang(ctx) },
		"path": func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"user": func() *model.User { return model.UserFromContext(ctx) },
	}
}

var staticFuncs = template.FuncMap{
	"band":  func(score int) string { return string(session.Band(score)) },
	"add":   func(a, b int) int { return a + b },
	"fixed": func(f float64) string { return fmt.Sprintf("%.1f", f) },
	"join":  strings.Join,
	"first": func(n int, items []string) []string {
		if len(items) > n {
			return items[:n]
		}
		return items
	},
}
