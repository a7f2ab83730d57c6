// Package openrpc loads OpenRPC specification documents and validates
// JSON-RPC responses against their declared schemas and spec-wide rules.
package openrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

var (
	errNoMethods       = errors.New("document declares no methods")
	errMethodNoName    = errors.New("method missing name")
	errDuplicateMethod = errors.New("duplicate method name")
)

// Document is the subset of an OpenRPC document the validator consumes.
type Document struct {
	OpenRPC    string           `json:"openrpc"`
	Info       Info             `json:"info"`
	Methods    []*MethodDecl    `json:"methods"`
	Components *ComponentsDecl  `json:"components,omitempty"`
}

// Info identifies the specification.
type Info struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// MethodDecl is a raw method declaration from the document.
type MethodDecl struct {
	Name   string          `json:"name"`
	Params []*ParamDecl    `json:"params"`
	Result *ResultDecl     `json:"result"`
	Errors []*ErrorDecl    `json:"errors,omitempty"`
}

// ParamDecl is an ordered, typed, named method parameter.
type ParamDecl struct {
	Name     string          `json:"name"`
	Required bool            `json:"required"`
	Schema   json.RawMessage `json:"schema"`
}

// ResultDecl declares the result schema of a method.
type ResultDecl struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// ErrorDecl declares one error a method may legally return.
type ErrorDecl struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ComponentsDecl holds shared schema definitions referenced via
// "#/components/schemas/NAME".
type ComponentsDecl struct {
	Schemas map[string]json.RawMessage `json:"schemas,omitempty"`
	Errors  map[string]*ErrorDecl      `json:"errors,omitempty"`
}

// MethodSpec is an immutable, compiled view of one OpenRPC method.
// Shared read-only by all cases after Load.
type MethodSpec struct {
	Name       string
	Params     []*ParamDecl
	ResultRaw  json.RawMessage
	Result     *gojsonschema.Schema
	ErrorCodes map[int]string
}

// Registry holds all compiled method specs from one document.
type Registry struct {
	log     logrus.FieldLogger
	title   string
	version string
	methods map[string]*MethodSpec
}

// Load reads an OpenRPC document from a file path or an http(s) URL,
// compiles every method's result schema and returns an immutable registry.
func Load(log logrus.FieldLogger, location string) (*Registry, error) {
	data, err := read(location)
	if err != nil {
		return nil, fmt.Errorf("reading openrpc document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing openrpc document: %w", err)
	}

	if len(doc.Methods) == 0 {
		return nil, errNoMethods
	}

	registry := &Registry{
		log:     log.WithField("component", "openrpc_registry"),
		title:   doc.Info.Title,
		version: doc.Info.Version,
		methods: make(map[string]*MethodSpec, len(doc.Methods)),
	}

	var componentsRaw json.RawMessage
	if doc.Components != nil {
		componentsRaw, err = json.Marshal(doc.Components)
		if err != nil {
			return nil, fmt.Errorf("re-encoding components: %w", err)
		}
	}

	for _, decl := range doc.Methods {
		if decl.Name == "" {
			return nil, errMethodNoName
		}

		if _, exists := registry.methods[decl.Name]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicateMethod, decl.Name)
		}

		spec, err := compileMethod(decl, componentsRaw)
		if err != nil {
			return nil, fmt.Errorf("compiling method %s: %w", decl.Name, err)
		}

		registry.methods[decl.Name] = spec
	}

	registry.log.WithFields(logrus.Fields{
		"title":   doc.Info.Title,
		"version": doc.Info.Version,
		"methods": len(registry.methods),
	}).Info("loaded openrpc document")

	return registry, nil
}

// Method returns the compiled spec for a method name, or nil when the
// document does not declare it.
func (r *Registry) Method(name string) *MethodSpec {
	return r.methods[name]
}

// Methods returns the names of all declared methods.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}

	return names
}

// compileMethod builds a MethodSpec, embedding the document's components so
// "#/components/schemas/..." references resolve against the compiled root.
func compileMethod(decl *MethodDecl, componentsRaw json.RawMessage) (*MethodSpec, error) {
	spec := &MethodSpec{
		Name:       decl.Name,
		Params:     decl.Params,
		ErrorCodes: make(map[int]string, len(decl.Errors)),
	}

	for _, e := range decl.Errors {
		spec.ErrorCodes[e.Code] = e.Message
	}

	if decl.Result == nil || len(decl.Result.Schema) == 0 {
		return spec, nil
	}

	spec.ResultRaw = decl.Result.Schema

	root, err := embedComponents(decl.Result.Schema, componentsRaw)
	if err != nil {
		return nil, err
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(root))
	if err != nil {
		return nil, fmt.Errorf("compiling result schema: %w", err)
	}

	spec.Result = compiled

	return spec, nil
}

// embedComponents grafts the document components onto a method schema so
// internal $refs resolve. The schema keeps its own keywords untouched.
func embedComponents(schema, componentsRaw json.RawMessage) (json.RawMessage, error) {
	if len(componentsRaw) == 0 {
		return schema, nil
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(schema, &root); err != nil {
		// Non-object schemas (e.g. bare booleans) have no refs to resolve.
		return schema, nil //nolint:nilerr // fall back to the schema as-is
	}

	if _, exists := root["components"]; !exists {
		root["components"] = componentsRaw
	}

	return json.Marshal(root)
}

// read fetches the document body from a URL or the local filesystem.
func read(location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}

		resp, err := client.Get(location) //nolint:noctx // startup-time fetch with client timeout
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: http status %d", location, resp.StatusCode)
		}

		return io.ReadAll(resp.Body)
	}

	return os.ReadFile(location) //nolint:gosec // G304: document path comes from operator config
}
