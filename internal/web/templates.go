package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateData holds common data passed to all templates
type TemplateData struct {
	AppName   string
	Title     string
	CSRFToken string
	Next      string
	Error     string
	Success   string
	Data      interface{}
}

var pages = []string{
	"login.html",
	"invitation.html",
}

// Renderer holds the parsed page templates.
type Renderer struct {
	appName   string
	templates map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer(appName string) (*Renderer, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, err
		}
		templates[page] = tmpl
	}

	log.Info().Int("count", len(templates)).Msg("Templates initialized")
	return &Renderer{appName: appName, templates: templates}, nil
}

// Render writes the named page with status.
func (rd *Renderer) Render(w http.ResponseWriter, status int, name string, data *TemplateData) {
	tmpl, ok := rd.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	data.AppName = rd.appName

	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render template")
	}
}
