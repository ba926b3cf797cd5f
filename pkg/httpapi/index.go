package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/harun/toolgate/pkg/capability"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	Tools []capability.Descriptor
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, indexPage{Tools: s.dispatcher.ListDescriptors()}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render index page")
		http.Error(w, "failed to render index", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
