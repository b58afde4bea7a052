package apiv1

import (
	"context"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPIPath = "../../../public/docs/v1/openapi.yml"

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc, err := openapi3.NewLoader().LoadFromFile(openAPIPath)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
}

// Every registered route must be described in the document.
func TestOpenAPIDocumentCoversRoutes(t *testing.T) {
	doc, err := openapi3.NewLoader().LoadFromFile(openAPIPath)
	require.NoError(t, err)

	app := fiber.New()
	RegisterHandlers(app, NewAPIServer(nil))

	for _, route := range app.GetRoutes(true) {
		if route.Method == fiber.MethodHead {
			continue
		}
		path := toOpenAPIPath(route.Path)
		item := doc.Paths.Value(path)
		if !assert.NotNil(t, item, "missing path %s", path) {
			continue
		}
		assert.NotNil(t, item.GetOperation(route.Method), "missing %s %s", route.Method, path)
	}
}

func toOpenAPIPath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + strings.TrimPrefix(part, ":") + "}"
		}
	}
	return strings.Join(parts, "/")
}
