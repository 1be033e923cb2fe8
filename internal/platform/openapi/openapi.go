// Package openapi describes the REST API as an OpenAPI 3 document. Schemas
// are reflected from the Go request and response types.
package openapi

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Resource is a collection exposed under the API base path with list,
// create, read, update, patch and delete operations.
type Resource struct {
	// Path is the collection path, e.g. "/appointments".
	Path string
	Tag  string
	// Name is the component schema name of Model.
	Name    string
	Model   interface{}
	Input   interface{}
	Filters []string
	// ReadOnly resources only get list and read operations.
	ReadOnly bool
	Actions  []Action
}

// Action is an extra POST /{id}/<Name> operation on a resource.
type Action struct {
	Name    string
	Summary string
	Input   interface{}
}

// Generator collects resources and renders the document.
type Generator struct {
	title   string
	version string
	baseURL string

	mu        sync.Mutex
	resources []Resource
	doc       *openapi3.T
}

func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL}
}

// Add registers resources. The document is rebuilt on the next Build.
func (g *Generator) Add(resources ...Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, resources...)
	g.doc = nil
}

var (
	dateType = reflect.TypeOf(civil.Date{})
	timeType = reflect.TypeOf(civil.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// customize maps value types that marshal as strings onto string schemas.
func customize(_ string, t reflect.Type, _ reflect.StructTag, schema *openapi3.Schema) error {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case dateType:
		*schema = *openapi3.NewStringSchema().WithFormat("date")
	case timeType:
		*schema = *openapi3.NewStringSchema().WithFormat("time")
	case uuidType:
		*schema = *openapi3.NewUUIDSchema()
	}
	return nil
}

func (g *Generator) schemaFor(doc *openapi3.T, name string, value interface{}) (*openapi3.SchemaRef, error) {
	if existing, ok := doc.Components.Schemas[name]; ok {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, existing.Value), nil
	}
	ref, err := openapi3gen.NewSchemaRefForValue(value, openapi3.Schemas{}, openapi3gen.SchemaCustomizer(customize))
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	doc.Components.Schemas[name] = ref
	return openapi3.NewSchemaRef("#/components/schemas/"+name, ref.Value), nil
}

// Build renders and validates the document. The result is cached until Add
// is called again.
func (g *Generator) Build(ctx context.Context) (*openapi3.T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.doc != nil {
		return g.doc, nil
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: g.title, Version: g.version},
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{},
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearerAuth": &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
		Security: *openapi3.NewSecurityRequirements().With(openapi3.NewSecurityRequirement().Authenticate("bearerAuth")),
	}
	if g.baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: g.baseURL}}
	}
	doc.Components.Schemas["Message"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("message", openapi3.NewStringSchema()))
	doc.Components.Schemas["ValidationErrors"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithAdditionalProperties(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())))

	resources := append([]Resource(nil), g.resources...)
	sort.Slice(resources, func(i, j int) bool { return resources[i].Path < resources[j].Path })
	for _, r := range resources {
		if err := g.addResource(doc, r); err != nil {
			return nil, err
		}
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	g.doc = doc
	return doc, nil
}

func messageResponse(doc *openapi3.T, desc string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).
		WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/Message", doc.Components.Schemas["Message"].Value))}
}

func jsonResponse(desc string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchemaRef(schema)}
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(schema)}
}

func listParameters(filters []string) openapi3.Parameters {
	params := openapi3.Parameters{
		{Value: openapi3.NewQueryParameter("limit").WithSchema(openapi3.NewIntegerSchema().WithMin(1))},
		{Value: openapi3.NewQueryParameter("offset").WithSchema(openapi3.NewIntegerSchema().WithMin(0))},
		{Value: openapi3.NewQueryParameter("search").WithSchema(openapi3.NewStringSchema())},
		{Value: openapi3.NewQueryParameter("ordering").WithSchema(openapi3.NewStringSchema()).
			WithDescription("Field name, prefixed with - for descending order.")},
	}
	for _, f := range filters {
		params = append(params, &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(f).WithSchema(openapi3.NewStringSchema())})
	}
	return params
}

func (g *Generator) addResource(doc *openapi3.T, r Resource) error {
	model, err := g.schemaFor(doc, r.Name, r.Model)
	if err != nil {
		return err
	}
	results := openapi3.NewArraySchema()
	results.Items = model
	page := openapi3.NewObjectSchema().
		WithProperty("count", openapi3.NewIntegerSchema()).
		WithProperty("next", openapi3.NewStringSchema().WithNullable()).
		WithProperty("previous", openapi3.NewStringSchema().WithNullable()).
		WithProperty("results", results)

	idParam := openapi3.Parameters{{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewUUIDSchema())}}
	forbidden := messageResponse(doc, "Forbidden")
	notFound := messageResponse(doc, "Not found")
	invalid := jsonResponse("Invalid input", openapi3.NewSchemaRef("#/components/schemas/ValidationErrors",
		doc.Components.Schemas["ValidationErrors"].Value))

	collection := &openapi3.PathItem{
		Get: &openapi3.Operation{
			Summary:     "List " + r.Tag,
			OperationID: "list" + r.Name,
			Tags:        []string{r.Tag},
			Parameters:  listParameters(r.Filters),
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, jsonResponse("Paginated results", openapi3.NewSchemaRef("", page))),
				openapi3.WithStatus(http.StatusForbidden, forbidden),
			),
		},
	}
	item := &openapi3.PathItem{
		Parameters: idParam,
		Get: &openapi3.Operation{
			Summary:     "Retrieve " + r.Name,
			OperationID: "get" + r.Name,
			Tags:        []string{r.Tag},
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, jsonResponse(r.Name, model)),
				openapi3.WithStatus(http.StatusForbidden, forbidden),
				openapi3.WithStatus(http.StatusNotFound, notFound),
			),
		},
	}

	if !r.ReadOnly {
		input, err := g.schemaFor(doc, r.Name+"Input", r.Input)
		if err != nil {
			return err
		}
		writeResponses := func(status int, desc string) *openapi3.Responses {
			return openapi3.NewResponses(
				openapi3.WithStatus(status, jsonResponse(desc, model)),
				openapi3.WithStatus(http.StatusBadRequest, invalid),
				openapi3.WithStatus(http.StatusForbidden, forbidden),
				openapi3.WithStatus(http.StatusConflict, messageResponse(doc, "Conflict")),
			)
		}
		collection.Post = &openapi3.Operation{
			Summary: "Create " + r.Name, OperationID: "create" + r.Name, Tags: []string{r.Tag},
			RequestBody: jsonBody(input), Responses: writeResponses(http.StatusCreated, "Created"),
		}
		item.Put = &openapi3.Operation{
			Summary: "Replace " + r.Name, OperationID: "update" + r.Name, Tags: []string{r.Tag},
			RequestBody: jsonBody(input), Responses: writeResponses(http.StatusOK, "Updated"),
		}
		item.Patch = &openapi3.Operation{
			Summary: "Partially update " + r.Name, OperationID: "patch" + r.Name, Tags: []string{r.Tag},
			RequestBody: jsonBody(input), Responses: writeResponses(http.StatusOK, "Updated"),
		}
		item.Delete = &openapi3.Operation{
			Summary: "Delete " + r.Name, OperationID: "delete" + r.Name, Tags: []string{r.Tag},
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusNoContent, &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Deleted")}),
				openapi3.WithStatus(http.StatusForbidden, forbidden),
				openapi3.WithStatus(http.StatusNotFound, notFound),
			),
		}
	}

	doc.Paths.Set(r.Path, collection)
	doc.Paths.Set(r.Path+"/{id}", item)

	for _, a := range r.Actions {
		body, err := g.schemaFor(doc, r.Name+exported(a.Name)+"Input", a.Input)
		if err != nil {
			return err
		}
		doc.Paths.Set(r.Path+"/{id}/"+a.Name, &openapi3.PathItem{
			Parameters: idParam,
			Post: &openapi3.Operation{
				Summary:     a.Summary,
				OperationID: a.Name + r.Name,
				Tags:        []string{r.Tag},
				RequestBody: jsonBody(body),
				Responses: openapi3.NewResponses(
					openapi3.WithStatus(http.StatusOK, jsonResponse(r.Name, model)),
					openapi3.WithStatus(http.StatusBadRequest, invalid),
					openapi3.WithStatus(http.StatusForbidden, forbidden),
					openapi3.WithStatus(http.StatusConflict, messageResponse(doc, "Conflict")),
				),
			},
		})
	}
	return nil
}

func exported(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// RegisterRoutes serves the document and a Swagger UI page.
func (g *Generator) RegisterRoutes(api *echo.Group) {
	api.GET("/openapi.json", func(c echo.Context) error {
		doc, err := g.Build(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, doc)
	})
	api.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>HMS API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`
