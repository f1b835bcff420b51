// Package loader decodes the graph-definition document shape (documented in
// §6.1 of the engine's specification) from JSON bytes into a
// types.GraphDefinition the core's graph.New consumes. It never reads from
// disk itself — callers supply []byte or an io.Reader — leaving "loading
// from on-disk text" to the host, per the engine's Non-goals.
//
// Grounded on the teacher's workflow/parser.go (Parser.Parse + validate)
// generalized from the teacher's node/edge document shape to the
// name-keyed-nodes/"src:port"-pair-connections shape this engine documents,
// and on the original C++'s loadGraphDefFromJson for structural-validation
// ordering (decode, then validate names before connections).
package loader

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kestrelflow/dagflow/pkg/types"
)

// document is the wire shape: a name-keyed map of nodes and a list of
// [src, dst] "node:port" pairs.
type document struct {
	Name        string                  `json:"name"`
	Nodes       map[string]documentNode `json:"nodes"`
	Connections [][]string              `json:"connections"`
}

type documentNode struct {
	Type     string `json:"type"`
	Settings any    `json:"settings,omitempty"`
}

// Loader decodes graph-definition documents, optionally validating each
// node's settings payload against a JSON Schema registered for its type
// tag.
type Loader struct {
	schemas map[string]*gojsonschema.Schema
}

// Option configures a Loader.
type Option func(*Loader) error

// New builds a Loader with opts applied. With no options, schema
// validation is skipped entirely.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// WithSchemas registers a JSON Schema document (as raw JSON text) per node
// type tag. A node whose type has a registered schema has its settings
// payload validated against it at load time; types absent from schemas are
// never checked. This is opt-in and orthogonal to the document's structural
// validation (required name and nodes, two-element connection entries,
// well-formed "node:port" strings), which always runs regardless of whether
// WithSchemas is used. The loader does not check that a connection names a
// node present in the document; graph.New rejects such a connection.
func WithSchemas(schemas map[string]string) Option {
	return func(l *Loader) error {
		l.schemas = make(map[string]*gojsonschema.Schema, len(schemas))
		for typeTag, raw := range schemas {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
			if err != nil {
				return fmt.Errorf("compiling schema for type %q: %w", typeTag, err)
			}
			l.schemas[typeTag] = schema
		}
		return nil
	}
}

// Decode reads a full graph-definition document from r and returns the
// decoded types.GraphDefinition.
func (l *Loader) Decode(r io.Reader) (types.GraphDefinition, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return types.GraphDefinition{}, fmt.Errorf("reading graph definition: %w", err)
	}
	return l.Parse(raw)
}

// Parse decodes a full graph-definition document from raw JSON bytes.
func (l *Loader) Parse(raw []byte) (types.GraphDefinition, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.GraphDefinition{}, fmt.Errorf("parsing graph definition: %w", err)
	}
	return l.fromDocument(doc)
}

func (l *Loader) fromDocument(doc document) (types.GraphDefinition, error) {
	if doc.Name == "" {
		return types.GraphDefinition{}, ErrMissingName
	}
	if len(doc.Nodes) == 0 {
		return types.GraphDefinition{}, ErrMissingNodes
	}

	names := make([]string, 0, len(doc.Nodes))
	for name := range doc.Nodes {
		names = append(names, name)
	}
	sortStrings(names)

	def := types.GraphDefinition{
		Name:  doc.Name,
		Nodes: make([]types.NodeDefinition, 0, len(doc.Nodes)),
	}
	for _, name := range names {
		dn := doc.Nodes[name]
		settings, err := toSettingsMap(dn.Settings)
		if err != nil {
			return types.GraphDefinition{}, fmt.Errorf("node %q: %w", name, err)
		}
		if err := l.validateSchema(dn.Type, settings); err != nil {
			return types.GraphDefinition{}, fmt.Errorf("node %q: %w", name, err)
		}
		def.Nodes = append(def.Nodes, types.NodeDefinition{
			Name:     name,
			Type:     dn.Type,
			Settings: settings,
		})
	}

	for _, pair := range doc.Connections {
		if len(pair) != 2 {
			return types.GraphDefinition{}, fmt.Errorf("%w: got %d elements", ErrMalformedConnection, len(pair))
		}
		src, ok := types.ParsePort(pair[0])
		if !ok {
			return types.GraphDefinition{}, fmt.Errorf("%w: %q", ErrMalformedPort, pair[0])
		}
		dst, ok := types.ParsePort(pair[1])
		if !ok {
			return types.GraphDefinition{}, fmt.Errorf("%w: %q", ErrMalformedPort, pair[1])
		}
		def.Connections = append(def.Connections, types.Connection{Src: src, Dst: dst})
	}

	return def, nil
}

// toSettingsMap accepts either an absent/null settings value (yielding nil)
// or a JSON object, matching §6.1's "<any> | absent" shape as narrowed to
// what NodeDefinition.Settings (a map[string]any) can actually hold.
func toSettingsMap(raw any) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("settings must be a JSON object, got %T", raw)
	}
	return m, nil
}

func (l *Loader) validateSchema(typeTag string, settings map[string]any) error {
	schema, ok := l.schemas[typeTag]
	if !ok {
		return nil
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings for schema validation: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validating settings: %w", err)
	}
	if result.Valid() {
		return nil
	}
	return fmt.Errorf("%w for type %q: %s", ErrSchemaValidation, typeTag, result.Errors()[0].String())
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
