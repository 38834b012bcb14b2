package router

import (
	"context"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/constants"
)

const openAPIDoc = "../../../public/docs/v1/openapi.yml"

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(openAPIDoc)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	return doc
}

// docPath maps a fiber route path onto the document's server-relative path.
func docPath(routePath string) string {
	p := strings.TrimPrefix(strings.TrimRight(routePath, "/"), constants.APIRoute)
	segments := strings.Split(p, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = "{" + strings.TrimPrefix(s, ":") + "}"
		}
	}
	return strings.Join(segments, "/")
}

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc := loadOpenAPI(t)
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.NotNil(t, doc.Paths.Value("/webhook"))
}

func TestOpenAPIDocumentsEveryRoute(t *testing.T) {
	doc := loadOpenAPI(t)
	app := newTestApp(t)

	for _, route := range app.GetRoutes(true) {
		if route.Method == fiber.MethodHead {
			continue
		}
		path := docPath(route.Path)
		if path == "" {
			continue
		}
		t.Run(route.Method+" "+path, func(t *testing.T) {
			item := doc.Paths.Value(path)
			require.NotNil(t, item, "path missing from document")
			assert.NotNil(t, item.GetOperation(route.Method), "operation missing from document")
		})
	}
}

func TestDocPath(t *testing.T) {
	assert.Equal(t, "/v1/meetings/{id}/cancel", docPath("/api/v1/meetings/:id/cancel"))
	assert.Equal(t, "/v1/agents", docPath("/api/v1/agents/"))
	assert.Equal(t, "/webhook", docPath("/api/webhook"))
	assert.Equal(t, "", docPath("/api/"))
}
