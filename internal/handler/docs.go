package handler

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

//go:embed docs/openapi.yaml
var openAPIYAML []byte

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
)

// OpenAPIJSON returns the API document converted to JSON.
func OpenAPIJSON() ([]byte, error) {
	openAPIOnce.Do(func() {
		var doc map[string]any
		if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
			openAPIErr = fmt.Errorf("parse openapi.yaml: %w", err)
			return
		}
		openAPIJSON, openAPIErr = json.Marshal(doc)
	})
	return openAPIJSON, openAPIErr
}

// APIDocs handles GET /v3/api-docs.
func APIDocs(c echo.Context) error {
	doc, err := OpenAPIJSON()
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, doc)
}

// APIDocsYAML handles GET /v3/api-docs.yaml.
func APIDocsYAML(c echo.Context) error {
	return c.Blob(http.StatusOK, "application/yaml", openAPIYAML)
}
