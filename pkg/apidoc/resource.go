// Package apidoc describes the generated CRUD resources of a service as
// OpenAPI paths and component schemas.
package apidoc

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/edgeflare/sqlgate/pkg/schema"
)

// Operation event suffixes; the full event name is "<service>.<resource>.<suffix>".
const (
	EventList   = "list"
	EventCreate = "create"
	EventUpdate = "update"
	EventDelete = "delete"
	EventRead   = "read"
)

const (
	MetadataModel = "Metadata"
	ErrorModel    = "Error"
)

type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Schema      Schema `json:"schema"`
}

type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required"`
	Content     map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema Schema `json:"schema"`
}

type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

type Operation struct {
	Tags        []string            `json:"tags"`
	Summary     string              `json:"summary"`
	Description string              `json:"description,omitempty"`
	OperationID string              `json:"operationId"`
	EventName   []string            `json:"x-event-name"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

// PathItem maps lowercase HTTP methods to operations.
type PathItem map[string]Operation

// Schema is a JSON schema fragment.
type Schema map[string]any

// Doc is the API description of one or more resources.
type Doc struct {
	Paths   map[string]PathItem `json:"paths"`
	Schemas map[string]Schema   `json:"schemas"`
}

// Names of one resource as they appear in operation ids and schema names.
type names struct {
	service  string
	resource string
	singular string // "OrderItem"
	plural   string // "OrderItems"
	label    string // "order items"
}

// newNames derives the names of resource. Scoped names carry the service
// as a prefix so that resources of several services can share a document.
func newNames(service, resource string, scoped bool) names {
	camel := camelize(resource)
	if scoped {
		camel = camelize(service) + camel
	}
	return names{
		service:  service,
		resource: resource,
		singular: inflection.Singular(camel),
		plural:   inflection.Plural(camel),
		label:    inflection.Plural(strings.ReplaceAll(resource, "_", " ")),
	}
}

func camelize(s string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == '.' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func (n names) event(suffix string) []string {
	return []string{fmt.Sprintf("%s.%s.%s", n.service, n.resource, suffix)}
}

// builder renders the documentation of one table resource.
type builder struct {
	names
	table schema.Table
}

func (b builder) ref(model string) Schema {
	return Schema{"$ref": "#/components/schemas/" + model}
}

func jsonContent(s Schema) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: s}}
}

func (b builder) responses(ok string, model string) map[string]Response {
	return map[string]Response{
		ok:    {Description: okDescription(ok), Content: jsonContent(b.ref(model))},
		"400": {Description: "Bad Request - Request does not have a valid format, all required parameters, etc.", Content: jsonContent(b.ref(ErrorModel))},
		"401": {Description: "Unauthorized Access - No currently valid session available.", Content: jsonContent(b.ref(ErrorModel))},
		"500": {Description: "System Error - Specific reason is included in the error message.", Content: jsonContent(b.ref(ErrorModel))},
	}
}

func okDescription(code string) string {
	if code == "201" {
		return "Created"
	}
	return "Success"
}

func (b builder) op(method, id, summary, event string, params []Parameter, body string, ok, model string) Operation {
	op := Operation{
		Tags:        []string{b.service},
		Summary:     summary,
		OperationID: method + id,
		EventName:   b.event(event),
		Parameters:  params,
		Responses:   b.responses(ok, model),
	}
	if body != "" {
		op.RequestBody = &RequestBody{
			Description: "Data containing name-value pairs of records.",
			Required:    true,
			Content:     jsonContent(b.ref(body)),
		}
	}
	return op
}

func queryParam(name, typ, desc string) Parameter {
	return Parameter{Name: name, In: "query", Description: desc, Schema: Schema{"type": typ}}
}

var (
	fieldsParam       = queryParam("fields", "string", "Comma-delimited list of properties to be returned for each resource, \"*\" returns all.")
	filterParam       = queryParam("filter", "string", "Filter records by column, e.g. name=eq.widget.")
	idsParam          = queryParam("ids", "string", "Comma-delimited list of the identifiers of the records to act on.")
	limitParam        = queryParam("limit", "integer", "Set to limit the number of records returned.")
	offsetParam       = queryParam("offset", "integer", "Set to offset the returned records.")
	orderParam        = queryParam("order", "string", "SQL-like order containing field and direction, e.g. name.desc.")
	includeCountParam = queryParam("include_count", "boolean", "Include the total number of filtered records in the metadata.")
)

func (b builder) idParam() Parameter {
	p := Parameter{Name: "id", In: "path", Required: true, Description: "Identifier of the record to act on.", Schema: Schema{"type": "string"}}
	if pk, ok := b.table.PrimaryKey(); ok {
		p.Schema = paramSchema(pk)
	}
	return p
}

func (b builder) collection() PathItem {
	return PathItem{
		"get": b.op("get", b.plural, fmt.Sprintf("get%s() - Retrieve one or more %s.", b.plural, b.label), EventList,
			[]Parameter{fieldsParam, filterParam, idsParam, limitParam, offsetParam, orderParam, includeCountParam}, "", "200", b.plural+"Response"),
		"post": b.op("create", b.plural, fmt.Sprintf("create%s() - Create one or more %s.", b.plural, b.label), EventCreate,
			[]Parameter{fieldsParam}, b.plural+"Request", "201", b.plural+"Response"),
		"patch": b.op("update", b.plural, fmt.Sprintf("update%s() - Update one or more %s.", b.plural, b.label), EventUpdate,
			[]Parameter{fieldsParam, filterParam, idsParam}, b.plural+"Request", "200", b.plural+"Response"),
		"delete": b.op("delete", b.plural, fmt.Sprintf("delete%s() - Delete one or more %s.", b.plural, b.label), EventDelete,
			[]Parameter{fieldsParam, filterParam, idsParam}, "", "200", b.plural+"Response"),
	}
}

func (b builder) record() PathItem {
	id := b.idParam()
	return PathItem{
		"get": b.op("get", b.singular, fmt.Sprintf("get%s() - Retrieve one %s.", b.singular, inflection.Singular(b.label)), EventRead,
			[]Parameter{id, fieldsParam}, "", "200", b.singular+"Response"),
		"patch": b.op("update", b.singular, fmt.Sprintf("update%s() - Update one %s.", b.singular, inflection.Singular(b.label)), EventUpdate,
			[]Parameter{id, fieldsParam}, b.singular+"Request", "200", b.singular+"Response"),
		"delete": b.op("delete", b.singular, fmt.Sprintf("delete%s() - Delete one %s.", b.singular, inflection.Singular(b.label)), EventDelete,
			[]Parameter{id, fieldsParam}, "", "200", b.singular+"Response"),
	}
}

// models returns the request and response schemas of the resource.
func (b builder) models(wrapper string) map[string]Schema {
	record := recordSchema(b.table, false)
	writable := recordSchema(b.table, true)
	return map[string]Schema{
		b.plural + "Request": {
			"type": "object",
			"properties": map[string]any{
				wrapper: Schema{"type": "array", "description": "Array of records.", "items": writable},
				"ids":   Schema{"type": "array", "description": "Array of record identifiers.", "items": Schema{"type": "string"}},
			},
		},
		b.plural + "Response": {
			"type": "object",
			"properties": map[string]any{
				wrapper: Schema{"type": "array", "description": "Array of records.", "items": record},
				"meta":  b.ref(MetadataModel),
			},
		},
		b.singular + "Request":  writable,
		b.singular + "Response": record,
	}
}

// commonModels are shared by every resource.
func commonModels() map[string]Schema {
	return map[string]Schema{
		MetadataModel: {
			"type": "object",
			"properties": map[string]any{
				"schema": Schema{"type": "array", "description": "Array of field names returned.", "items": Schema{"type": "string"}},
				"count":  Schema{"type": "integer", "format": "int32", "description": "Record count returned, or affected."},
			},
		},
		ErrorModel: {
			"type": "object",
			"properties": map[string]any{
				"code":    Schema{"type": "integer", "format": "int32"},
				"message": Schema{"type": "string"},
			},
		},
	}
}

// Resource documents the CRUD resource generated for table t of service.
// Paths are relative to the service: "/{table}" and "/{table}/{id}".
func Resource(service string, t schema.Table, wrapper string) Doc {
	doc := Doc{Paths: map[string]PathItem{}, Schemas: commonModels()}
	doc.add(builder{names: newNames(service, t.Name, false), table: t}, "", wrapper)
	return doc
}

// Service documents every table resource of a service.
func Service(service string, tables []schema.Table, wrapper string) Doc {
	doc := Doc{Paths: map[string]PathItem{}, Schemas: commonModels()}
	for _, t := range tables {
		doc.add(builder{names: newNames(service, t.Name, false), table: t}, "", wrapper)
	}
	return doc
}

func (d Doc) add(b builder, pathPrefix, wrapper string) {
	if wrapper == "" {
		wrapper = "resource"
	}
	d.Paths[pathPrefix+"/"+b.resource] = b.collection()
	d.Paths[pathPrefix+"/"+b.resource+"/{id}"] = b.record()
	for name, s := range b.models(wrapper) {
		d.Schemas[name] = s
	}
}
