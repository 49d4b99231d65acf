package server

import (
	_ "embed"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/tms/server/api"
)

//go:embed openapi.yaml
var openAPIDoc []byte

// apiDocument decodes the embedded OpenAPI document.
func apiDocument() (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIDoc, &doc); err != nil {
		return nil, fmt.Errorf("decode openapi document: %w", err)
	}
	return doc, nil
}

// handleDocs serves the OpenAPI description as YAML, or as JSON when
// ?format=json is given.
func handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") != "json" {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPIDoc)
		return
	}
	doc, err := apiDocument()
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, doc)
}
