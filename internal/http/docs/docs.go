// Package docs registers the OpenAPI document of the public API with swag so
// gin-swagger can serve it at /swagger/doc.json.
package docs

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var doc string

// defaultBasePath is the base path baked into swagger.json.
const defaultBasePath = `"basePath": "/api/v1"`

type spec struct{ doc atomic.Value }

func (s *spec) ReadDoc() string { return s.doc.Load().(string) }

var registered = &spec{}

func init() {
	registered.doc.Store(doc)
	swag.Register(swag.Name, registered)
}

// Register sets the API prefix advertised by the served document.
// swag allows a single registration per name, so later calls only swap the
// document text.
func Register(basePath string) {
	if basePath == "" {
		basePath = "/"
	}
	bp, _ := json.Marshal(basePath)
	registered.doc.Store(strings.Replace(doc, defaultBasePath, `"basePath": `+string(bp), 1))
}
