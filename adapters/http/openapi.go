package http

import (
	"net/http"
	"strconv"
)

// Document is the subset of OpenAPI 3.0 the service describes itself with.
type Document struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Tag groups operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []map[string][]string `json:"security,omitempty"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query, header
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Required bool                 `json:"required,omitempty"`
	Content  map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
}

// Components holds reusable schemas and security schemes.
type Components struct {
	Schemas         map[string]*Schema        `json:"schemas"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme describes an authentication method.
type SecurityScheme struct {
	Type string `json:"type"`
	In   string `json:"in,omitempty"`
	Name string `json:"name,omitempty"`
}

func ref(name string) *Schema { return &Schema{Ref: "#/components/schemas/" + name} }

func jsonBody(s *Schema) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: s}}
}

func respond(desc string, s *Schema) Response {
	if s == nil {
		return Response{Description: desc}
	}
	return Response{Description: desc, Content: jsonBody(s)}
}

func pathParam(name, desc string) Parameter {
	return Parameter{Name: name, In: "path", Description: desc, Required: true, Schema: &Schema{Type: "string"}}
}

func responses(code int, desc string, s *Schema, errs ...int) map[string]Response {
	out := map[string]Response{strconv.Itoa(code): respond(desc, s)}
	for _, c := range errs {
		out[strconv.Itoa(c)] = respond(http.StatusText(c), ref("Error"))
	}
	return out
}

// OpenAPIDocument describes the HTTP API.
func OpenAPIDocument(version string) Document {
	if version == "" {
		version = "dev"
	}

	str := &Schema{Type: "string"}
	strMap := &Schema{Type: "object", AdditionalProperties: str}
	anyObj := &Schema{Type: "object"}
	admin := []map[string][]string{{"adminToken": {}}}
	name := pathParam("name", "Remote module name")

	return Document{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       "shellgate",
			Description: "Shell host for pluggable UI modules: remote resolution, contract validation, shared state and events.",
			Version:     version,
		},
		Tags: []Tag{
			{Name: "remotes", Description: "Remote module resolution"},
			{Name: "modules", Description: "Module lifecycle"},
			{Name: "events", Description: "Cross-module event bus"},
			{Name: "admin", Description: "Developer overrides"},
		},
		Paths: map[string]PathItem{
			"/remotes": {Get: &Operation{
				Tags: []string{"remotes"}, Summary: "Resolve every configured remote", OperationID: "listRemotes",
				Responses: responses(200, "Resolved remotes", ref("Remotes")),
			}},
			"/remotes/{name}": {Get: &Operation{
				Tags: []string{"remotes"}, Summary: "Resolve one remote", OperationID: "resolveRemote",
				Parameters: []Parameter{name, {Name: "default", In: "query", Description: "Default address for an unconfigured remote", Schema: str}},
				Responses:  responses(200, "Resolved remote", ref("Descriptor"), 404),
			}},
			"/contracts/validate": {Post: &Operation{
				Tags: []string{"modules"}, Summary: "Validate a tab module manifest", OperationID: "validateContract",
				RequestBody: &RequestBody{Required: true, Content: jsonBody(anyObj)},
				Responses:   responses(200, "Validation result", ref("ContractResult"), 400),
			}},
			"/modules": {Get: &Operation{
				Tags: []string{"modules"}, Summary: "List mounted modules", OperationID: "listModules",
				Responses: responses(200, "Mounted modules", &Schema{Type: "object", Properties: map[string]*Schema{"modules": {Type: "array", Items: ref("Mount")}}}),
			}},
			"/modules/{name}": {
				Post: &Operation{
					Tags: []string{"modules"}, Summary: "Activate a module", OperationID: "activateModule", Security: admin,
					Parameters: []Parameter{name},
					Responses:  responses(201, "Mounted", ref("Mount"), 401, 403, 404, 422, 502),
				},
				Delete: &Operation{
					Tags: []string{"modules"}, Summary: "Deactivate a module", OperationID: "deactivateModule", Security: admin,
					Parameters: []Parameter{name},
					Responses:  responses(204, "Unmounted", nil, 401, 403, 404),
				},
			},
			"/state": {Get: &Operation{
				Tags: []string{"modules"}, Summary: "Snapshot the shared state", OperationID: "getState",
				Responses: responses(200, "State snapshot", &Schema{Type: "object", Properties: map[string]*Schema{
					"keys":  {Type: "array", Items: str},
					"state": anyObj,
				}}),
			}},
			"/events": {Get: &Operation{
				Tags: []string{"events"}, Summary: "List the event catalog", OperationID: "listEvents",
				Responses: responses(200, "Event catalog", anyObj),
			}},
			"/events/{name}": {Post: &Operation{
				Tags: []string{"events"}, Summary: "Publish a catalog event", OperationID: "publishEvent", Security: admin,
				Parameters: []Parameter{
					pathParam("name", "Event name, e.g. search:submitted"),
					{Name: EventSourceHeader, In: "header", Description: "Publisher identifier", Schema: str},
				},
				RequestBody: &RequestBody{Required: true, Content: jsonBody(anyObj)},
				Responses:   responses(202, "Published", anyObj, 400, 401, 403, 404),
			}},
			"/admin/overrides": {
				Get: &Operation{
					Tags: []string{"admin"}, Summary: "List persisted overrides", OperationID: "listOverrides", Security: admin,
					Responses: responses(200, "Overrides", ref("Overrides"), 401, 403),
				},
				Delete: &Operation{
					Tags: []string{"admin"}, Summary: "Clear every override", OperationID: "clearOverrides", Security: admin,
					Responses: responses(204, "Cleared", nil, 401, 403),
				},
			},
			"/admin/overrides/staging": {Post: &Operation{
				Tags: []string{"admin"}, Summary: "Point every remote at staging", OperationID: "useStaging", Security: admin,
				Responses: responses(200, "Overrides written", ref("Overrides"), 401, 403),
			}},
			"/admin/overrides/{name}": {
				Put: &Operation{
					Tags: []string{"admin"}, Summary: "Override one remote", OperationID: "setOverride", Security: admin,
					Parameters:  []Parameter{name},
					RequestBody: &RequestBody{Required: true, Content: jsonBody(&Schema{Type: "object", Properties: map[string]*Schema{"address": str}})},
					Responses:   responses(200, "Overrides", ref("Overrides"), 400, 401, 403),
				},
				Delete: &Operation{
					Tags: []string{"admin"}, Summary: "Clear one override", OperationID: "clearOverride", Security: admin,
					Parameters: []Parameter{name},
					Responses:  responses(204, "Cleared", nil, 401, 403),
				},
			},
			"/admin/overrides/{name}/pr/{number}": {Post: &Operation{
				Tags: []string{"admin"}, Summary: "Point one remote at a PR preview", OperationID: "testPR", Security: admin,
				Parameters: []Parameter{name, {Name: "number", In: "path", Required: true, Schema: &Schema{Type: "integer"}}},
				Responses:  responses(200, "Preview written", anyObj, 400, 401, 403),
			}},
		},
		Components: Components{
			Schemas: map[string]*Schema{
				"Descriptor": {Type: "object", Properties: map[string]*Schema{
					"name":             str,
					"default_address":  str,
					"resolved_address": str,
					"source":           {Type: "string", Enum: []string{"url_param", "cookie", "client_store", "env_default"}},
				}},
				"Remotes":   {Type: "object", Properties: map[string]*Schema{"remotes": {Type: "array", Items: ref("Descriptor")}}},
				"Overrides": {Type: "object", Properties: map[string]*Schema{"overrides": strMap}},
				"ContractResult": {Type: "object", Properties: map[string]*Schema{
					"valid":   {Type: "boolean"},
					"errors":  {Type: "object", AdditionalProperties: &Schema{Type: "array", Items: str}},
					"message": str,
				}},
				"Mount": {Type: "object", Properties: map[string]*Schema{
					"name":        str,
					"instance_id": str,
					"tab_id":      str,
					"title":       str,
					"remote":      ref("Descriptor"),
					"slices":      {Type: "array", Items: str},
					"mounted_at":  {Type: "string", Format: "date-time"},
				}},
				"Error": {Type: "object", Properties: map[string]*Schema{
					"error": {Type: "object", Properties: map[string]*Schema{"code": str, "message": str}},
				}},
			},
			SecuritySchemes: map[string]SecurityScheme{
				"adminToken": {Type: "apiKey", In: "header", Name: AdminTokenHeader},
			},
		},
	}
}
