package callgraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/ident"
)

// Document keys for the two flavors.
const (
	cFlavorKey     = "functions"
	typedFlavorKey = "cha"
)

// ParseDocument decodes raw JSON bytes into a Graph.
func ParseDocument(data []byte) (*Graph, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "decode call-graph document")
	}
	return FromDocument(doc)
}

// FromDocument reconstructs a Graph from its structured document form.
//
// The document must carry product, version, timestamp, generator and exactly
// one of the flavor keys ("functions" for the C flavor, "cha" for the typed
// flavor) plus a "graph" group with internal/external call lists. Missing
// required keys fail with an INVALID_DOCUMENT error naming the missing path;
// metadata sub-objects are passed through opaquely.
func FromDocument(doc map[string]any) (*Graph, error) {
	product, err := requireString(doc, "product")
	if err != nil {
		return nil, err
	}
	version, err := requireString(doc, "version")
	if err != nil {
		return nil, err
	}

	var g *Graph
	switch {
	case doc[cFlavorKey] != nil:
		g = New(FlavorC)
		cha, err := requireMap(doc, cFlavorKey)
		if err != nil {
			return nil, err
		}
		if err := parseCScopes(g, cha); err != nil {
			return nil, err
		}
	case doc[typedFlavorKey] != nil:
		g = New(FlavorTyped)
		cha, err := requireMap(doc, typedFlavorKey)
		if err != nil {
			return nil, err
		}
		if err := parseTypes(g, cha); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidDocument,
			"missing %q or %q group", cFlavorKey, typedFlavorKey)
	}

	g.Product = product
	g.Version = version
	g.Forge, _ = doc["forge"].(string)
	g.Generator, _ = doc["generator"].(string)
	g.Timestamp = TimestampUnknown
	if ts, ok := doc["timestamp"].(float64); ok {
		g.Timestamp = int64(ts)
	}
	g.Architecture, _ = doc["architecture"].(string)

	graph, err := requireMap(doc, "graph")
	if err != nil {
		return nil, err
	}
	if g.Calls.Internal, err = parseCalls(graph, "internalCalls"); err != nil {
		return nil, err
	}
	if g.Calls.External, err = parseCalls(graph, "externalCalls"); err != nil {
		return nil, err
	}
	return g, nil
}

// ToDocument produces the inverse structure of FromDocument. Parsing a valid
// document and rendering it back yields a structurally equal document.
func (g *Graph) ToDocument() map[string]any {
	doc := map[string]any{
		"forge":     g.Forge,
		"product":   g.Product,
		"version":   g.Version,
		"timestamp": g.Timestamp,
		"generator": g.Generator,
		"graph": map[string]any{
			"internalCalls": renderCalls(g.Calls.Internal),
			"externalCalls": renderCalls(g.Calls.External),
		},
	}
	if g.Architecture != "" {
		doc["architecture"] = g.Architecture
	}
	switch g.Flavor {
	case FlavorC:
		doc[cFlavorKey] = renderCScopes(g)
	case FlavorTyped:
		doc[typedFlavorKey] = renderTypes(g)
	}
	return doc
}

// Marshal encodes the graph's document form as JSON bytes.
func (g *Graph) Marshal() ([]byte, error) {
	return json.Marshal(g.ToDocument())
}

// ----------------------------------------------------------------------------
// C flavor: five scopes under internal/external, complex scopes one level
// deeper (grouped by binary or product name).
// ----------------------------------------------------------------------------

// cScopeLayout fixes where each scope lives in the document.
var cScopeLayout = []struct {
	scope   Scope
	group   string // "internal" or "external"
	key     string
	complex bool
}{
	{ScopeInternalBinaries, "internal", "binaries", true},
	{ScopeInternalStatic, "internal", "static_functions", false},
	{ScopeExternalProducts, "external", "products", true},
	{ScopeExternalStatic, "external", "static_functions", true},
	{ScopeExternalUndefined, "external", "undefined", false},
}

func parseCScopes(g *Graph, cha map[string]any) error {
	groups := make(map[string]map[string]any, 2)
	for _, name := range []string{"internal", "external"} {
		m, err := requireMap(cha, name)
		if err != nil {
			return errors.New(errors.ErrCodeInvalidDocument, "missing %q.%s group", cFlavorKey, name)
		}
		groups[name] = m
	}

	for _, layout := range cScopeLayout {
		raw, err := requireMap(groups[layout.group], layout.key)
		if err != nil {
			return errors.New(errors.ErrCodeInvalidDocument,
				"missing %q.%s.%s scope", cFlavorKey, layout.group, layout.key)
		}
		if layout.complex {
			for name, entry := range raw {
				entryMap, ok := entry.(map[string]any)
				if !ok {
					return errors.New(errors.ErrCodeInvalidDocument,
						"%s.%s[%q] is not an object", layout.group, layout.key, name)
				}
				methods, err := parseMethods(entryMap, layout.key+"."+name, true)
				if err != nil {
					return err
				}
				g.CHA[layout.scope][name] = methods
			}
			continue
		}
		methods, err := parseMethods(raw, layout.group+"."+layout.key, true)
		if err != nil {
			return err
		}
		g.CHA[layout.scope][""] = methods
	}
	return nil
}

func renderCScopes(g *Graph) map[string]any {
	internal := make(map[string]any)
	external := make(map[string]any)
	for _, layout := range cScopeLayout {
		target := internal
		if layout.group == "external" {
			target = external
		}
		if layout.complex {
			out := make(map[string]any, len(g.CHA[layout.scope]))
			for name, methods := range g.CHA[layout.scope] {
				out[name] = map[string]any{"methods": renderMethods(methods, true)}
			}
			target[layout.key] = out
			continue
		}
		target[layout.key] = map[string]any{"methods": renderMethods(g.CHA[layout.scope][""], true)}
	}
	return map[string]any{"internal": internal, "external": external}
}

// ----------------------------------------------------------------------------
// Typed flavor: internal/external types owning methods, with the source file
// supplied at the type level.
// ----------------------------------------------------------------------------

func parseTypes(g *Graph, cha map[string]any) error {
	for key, target := range map[string]map[string]*Type{
		"internalTypes": g.InternalTypes,
		"externalTypes": g.ExternalTypes,
	} {
		raw, err := requireMap(cha, key)
		if err != nil {
			return errors.New(errors.ErrCodeInvalidDocument, "missing %q.%s group", typedFlavorKey, key)
		}
		for uri, entry := range raw {
			entryMap, ok := entry.(map[string]any)
			if !ok {
				return errors.New(errors.ErrCodeInvalidDocument, "%s[%q] is not an object", key, uri)
			}
			t, err := parseType(entryMap, key+"."+uri)
			if err != nil {
				return err
			}
			target[uri] = t
		}
	}
	return nil
}

func parseType(doc map[string]any, path string) (*Type, error) {
	methods, err := parseMethods(doc, path, false)
	if err != nil {
		return nil, err
	}
	t := &Type{Methods: methods}
	t.SourceFile, _ = doc["sourceFile"].(string)
	t.SuperClasses = stringList(doc["superClasses"])
	t.SuperInterfaces = stringList(doc["superInterfaces"])
	t.Access, _ = doc["access"].(string)
	t.Final, _ = doc["final"].(bool)
	return t, nil
}

func renderTypes(g *Graph) map[string]any {
	render := func(types map[string]*Type) map[string]any {
		out := make(map[string]any, len(types))
		for uri, t := range types {
			out[uri] = map[string]any{
				"sourceFile":      t.SourceFile,
				"methods":         renderMethods(t.Methods, false),
				"superClasses":    t.SuperClasses,
				"superInterfaces": t.SuperInterfaces,
				"access":          t.Access,
				"final":           t.Final,
			}
		}
		return out
	}
	return map[string]any{
		"internalTypes": render(g.InternalTypes),
		"externalTypes": render(g.ExternalTypes),
	}
}

// ----------------------------------------------------------------------------
// Methods
// ----------------------------------------------------------------------------

// parseMethods decodes a {"methods": {localId: MethodDoc}} group. withFiles
// controls whether per-node source file lists are expected (C flavor).
func parseMethods(doc map[string]any, path string, withFiles bool) (Methods, error) {
	raw, err := requireMap(doc, "methods")
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidDocument, "missing %s.methods", path)
	}
	methods := make(Methods, len(raw))
	for key, entry := range raw {
		localID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidDocument,
				"%s.methods key %q is not an integer local ID", path, key)
		}
		entryMap, ok := entry.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidDocument, "%s.methods[%q] is not an object", path, key)
		}
		uriText, ok := entryMap["uri"].(string)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidDocument, "%s.methods[%q] missing uri", path, key)
		}
		uri, err := ident.Parse(uriText)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "%s.methods[%q]", path, key)
		}
		node := &Node{URI: uri}
		if meta, ok := entryMap["metadata"].(map[string]any); ok {
			node.Metadata = meta
		} else {
			node.Metadata = map[string]any{}
		}
		if withFiles {
			node.Files = stringList(entryMap["files"])
		}
		methods[localID] = node
	}
	return methods, nil
}

func renderMethods(methods Methods, withFiles bool) map[string]any {
	out := make(map[string]any, len(methods))
	for localID, node := range methods {
		entry := map[string]any{
			"uri":      node.URI.String(),
			"metadata": node.Metadata,
		}
		if withFiles {
			entry["files"] = node.Files
		}
		out[strconv.FormatInt(localID, 10)] = entry
	}
	return out
}

// ----------------------------------------------------------------------------
// Calls: lists of [sourceLocalId, targetLocalId, {pcIndex: CallMetadata}]
// triples under graph.internalCalls / graph.externalCalls.
// ----------------------------------------------------------------------------

func parseCalls(graph map[string]any, key string) (map[Call]Sites, error) {
	raw, ok := graph[key].([]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidDocument, "missing graph.%s list", key)
	}
	calls := make(map[Call]Sites, len(raw))
	for i, entry := range raw {
		triple, ok := entry.([]any)
		if !ok || len(triple) != 3 {
			return nil, errors.New(errors.ErrCodeInvalidDocument,
				"graph.%s[%d] is not a [source, target, sites] triple", key, i)
		}
		source, okS := triple[0].(float64)
		target, okT := triple[1].(float64)
		if !okS || !okT {
			return nil, errors.New(errors.ErrCodeInvalidDocument,
				"graph.%s[%d] endpoints are not integers", key, i)
		}
		sitesRaw, ok := triple[2].(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidDocument,
				"graph.%s[%d] call sites are not an object", key, i)
		}
		sites := make(Sites, len(sitesRaw))
		for pc, meta := range sitesRaw {
			metaMap, ok := meta.(map[string]any)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidDocument,
					"graph.%s[%d] site %q is not an object", key, i, pc)
			}
			sites[pc] = metaMap
		}
		call := Call{Source: int64(source), Target: int64(target)}
		if existing, ok := calls[call]; ok {
			// Repeated triples for the same edge merge their call sites.
			for pc, meta := range sites {
				existing[pc] = meta
			}
			continue
		}
		calls[call] = sites
	}
	return calls, nil
}

func renderCalls(calls map[Call]Sites) []any {
	ordered := make([]Call, 0, len(calls))
	for call := range calls {
		ordered = append(ordered, call)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Source != ordered[j].Source {
			return ordered[i].Source < ordered[j].Source
		}
		return ordered[i].Target < ordered[j].Target
	})

	out := make([]any, 0, len(ordered))
	for _, call := range ordered {
		sites := make(map[string]any, len(calls[call]))
		for pc, meta := range calls[call] {
			sites[pc] = meta
		}
		out = append(out, []any{call.Source, call.Target, sites})
	}
	return out
}

// ----------------------------------------------------------------------------
// Document helpers
// ----------------------------------------------------------------------------

func requireString(doc map[string]any, key string) (string, error) {
	v, ok := doc[key].(string)
	if !ok || v == "" {
		return "", errors.New(errors.ErrCodeInvalidDocument, "missing %q", key)
	}
	return v, nil
}

func requireMap(doc map[string]any, key string) (map[string]any, error) {
	v, ok := doc[key].(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidDocument, "missing %q group", key)
	}
	return v, nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// String implements fmt.Stringer for logging artifact coordinates.
func (g *Graph) String() string {
	return fmt.Sprintf("%s:%s:%s", g.Forge, g.Product, g.Version)
}
