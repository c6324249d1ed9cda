// Package callgraph implements the language-agnostic in-memory model for one
// artifact's analyzed call graph.
//
// A Graph holds the artifact coordinates (forge, product, version), scoped
// collections of method nodes keyed by artifact-local integer IDs, and the
// internal/external call edges between those local IDs. Two flavors exist:
//
//   - C-like artifacts partition nodes into five semantic scopes
//     (internal binaries, internal static functions, external products,
//     external static functions, external undefined functions).
//   - Object-oriented artifacts partition nodes into internal and external
//     types, where a type additionally carries super-class/interface lists
//     and modifiers and owns its methods.
//
// Both flavors share identical edge and metadata shape, and both convert
// to/from the structured document form in document.go.
package callgraph

import (
	"sort"

	"github.com/stitchkb/stitchkb/pkg/ident"
)

// Flavor discriminates the two graph shapes.
type Flavor string

// Graph flavors.
const (
	// FlavorC is the C-like flavor with five semantic scopes.
	FlavorC Flavor = "c"
	// FlavorTyped is the object-oriented flavor with internal/external types.
	FlavorTyped Flavor = "typed"
)

// Scope is a semantic partition of an artifact's nodes (C flavor).
type Scope string

// The five C-flavor scopes. Complex scopes carry an extra grouping-key layer
// (binary or product name) in the document form; the in-memory shape is
// uniform regardless, with simple scopes grouped under the empty name.
const (
	ScopeInternalBinaries  Scope = "internal/binaries"
	ScopeInternalStatic    Scope = "internal/static_functions"
	ScopeExternalProducts  Scope = "external/products"
	ScopeExternalStatic    Scope = "external/static_functions"
	ScopeExternalUndefined Scope = "external/undefined"
)

// internalScopes and externalScopes fix the flattening order of the C scopes.
var (
	internalScopes = []Scope{ScopeInternalBinaries, ScopeInternalStatic}
	externalScopes = []Scope{ScopeExternalProducts, ScopeExternalStatic, ScopeExternalUndefined}
)

// complexScopes are grouped one level deeper (by binary or product name) in
// the document form.
var complexScopes = map[Scope]bool{
	ScopeInternalBinaries: true,
	ScopeExternalProducts: true,
	ScopeExternalStatic:   true,
}

// TimestampUnknown is the sentinel for an absent artifact timestamp.
const TimestampUnknown int64 = -1

// Node is one method/function record. A Node is created once per locally
// discovered method; the stitcher prunes known numeric metadata keys into
// dedicated columns before persistence but otherwise nodes are immutable.
type Node struct {
	URI      ident.ID       // canonical identifier
	Metadata map[string]any // free-form, ecosystem-specific metadata
	Files    []string       // source files; empty for the typed flavor
}

// Methods maps artifact-local IDs to nodes. Local IDs are unique only within
// one artifact's analysis output.
type Methods map[int64]*Node

// Type is one internal or external type of a typed-flavor graph. The owning
// source file is supplied at the type level instead of per method.
type Type struct {
	SourceFile      string
	Methods         Methods
	SuperClasses    []string
	SuperInterfaces []string
	Access          string
	Final           bool
}

// Call is one directed edge between two local IDs.
type Call struct {
	Source int64
	Target int64
}

// Sites holds the per-call-site metadata of one edge, keyed by the program
// counter index of the call site. The metadata objects are passed through
// opaquely; known keys (line, type, receiver) are projected out once at the
// persistence boundary.
type Sites map[string]map[string]any

// Calls partitions the artifact's edges into internal (both endpoints
// internal) and external (either endpoint external) sets. An artifact may
// report the same call site in both partitions; the merge for persistence
// must not drop or duplicate it.
type Calls struct {
	Internal map[Call]Sites
	External map[Call]Sites
}

// Graph is one artifact's analyzed call graph.
type Graph struct {
	Forge     string
	Product   string
	Version   string
	Timestamp int64 // UNIX seconds; TimestampUnknown if absent
	Generator string
	Flavor    Flavor

	// Architecture is the build architecture reported by C-flavor
	// producers; empty otherwise.
	Architecture string

	// CHA holds the C-flavor scopes: scope → grouping name → local ID → node.
	// Simple scopes use the empty grouping name.
	CHA map[Scope]map[string]Methods

	// InternalTypes and ExternalTypes hold the typed-flavor partitions,
	// keyed by the type's canonical identifier text.
	InternalTypes map[string]*Type
	ExternalTypes map[string]*Type

	Calls Calls
}

// New returns an empty graph of the given flavor with all collections
// allocated.
func New(flavor Flavor) *Graph {
	g := &Graph{
		Timestamp: TimestampUnknown,
		Flavor:    flavor,
		Calls: Calls{
			Internal: make(map[Call]Sites),
			External: make(map[Call]Sites),
		},
	}
	switch flavor {
	case FlavorC:
		g.CHA = make(map[Scope]map[string]Methods)
		for _, scope := range append(append([]Scope{}, internalScopes...), externalScopes...) {
			g.CHA[scope] = make(map[string]Methods)
		}
	case FlavorTyped:
		g.InternalTypes = make(map[string]*Type)
		g.ExternalTypes = make(map[string]*Type)
	}
	return g
}

// AllMethods flattens every scope/type bucket into one mapping of local ID to
// node. Local IDs are unique within a single artifact by construction; if a
// producer ever emits the same local ID in two buckets, the later-flattened
// bucket silently wins (internal buckets first, then external).
func (g *Graph) AllMethods() map[int64]*Node {
	out := make(map[int64]*Node)
	for _, u := range g.InternalUnits() {
		for id, n := range u.Methods {
			out[id] = n
		}
	}
	for _, u := range g.ExternalUnits() {
		for id, n := range u.Methods {
			out[id] = n
		}
	}
	return out
}

// Unit is the uniform stitching view over both flavors: one type (typed
// flavor) or one scope bucket (C flavor) owning a set of methods. Callers of
// InternalUnits/ExternalUnits never need to know which flavor produced it.
type Unit struct {
	// Name is the type's canonical identifier text (typed flavor) or the
	// scope-qualified bucket name (C flavor).
	Name string
	// SourceFile is the declared owning file; empty when the flavor supplies
	// files per node instead.
	SourceFile string
	// Metadata carries type-level attributes (super classes/interfaces,
	// modifiers) for the typed flavor.
	Metadata map[string]any
	Methods  Methods
}

// InternalUnits returns the internal partition as uniform units, in a
// deterministic order (scope order, then sorted grouping names).
func (g *Graph) InternalUnits() []Unit {
	if g.Flavor == FlavorTyped {
		return typeUnits(g.InternalTypes)
	}
	return scopeUnits(g.CHA, internalScopes)
}

// ExternalUnits returns the external partition as uniform units, in a
// deterministic order.
func (g *Graph) ExternalUnits() []Unit {
	if g.Flavor == FlavorTyped {
		return typeUnits(g.ExternalTypes)
	}
	return scopeUnits(g.CHA, externalScopes)
}

func typeUnits(types map[string]*Type) []Unit {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	units := make([]Unit, 0, len(names))
	for _, name := range names {
		t := types[name]
		units = append(units, Unit{
			Name:       name,
			SourceFile: t.SourceFile,
			Metadata: map[string]any{
				"superClasses":    t.SuperClasses,
				"superInterfaces": t.SuperInterfaces,
				"access":          t.Access,
				"final":           t.Final,
			},
			Methods: t.Methods,
		})
	}
	return units
}

func scopeUnits(cha map[Scope]map[string]Methods, scopes []Scope) []Unit {
	var units []Unit
	for _, scope := range scopes {
		groups := cha[scope]
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			unitName := string(scope)
			if name != "" {
				unitName += "/" + name
			}
			units = append(units, Unit{
				Name:    unitName,
				Methods: groups[name],
			})
		}
	}
	return units
}

// SourceFiles returns the unit's source files for persistence: the declared
// unit-level file when present, otherwise the distinct per-node files in
// sorted order.
func (u Unit) SourceFiles() []string {
	if u.SourceFile != "" {
		return []string{u.SourceFile}
	}
	seen := make(map[string]bool)
	var paths []string
	for _, node := range u.Methods {
		for _, f := range node.Files {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			paths = append(paths, f)
		}
	}
	sort.Strings(paths)
	return paths
}

// SortedLocalIDs returns the unit's local IDs in ascending order, giving a
// stable first-seen order for global ID assignment.
func (u Unit) SortedLocalIDs() []int64 {
	ids := make([]int64, 0, len(u.Methods))
	for id := range u.Methods {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MergedCalls merges the internal and external call maps into one combined
// edge set. A call site reported in both partitions appears exactly once,
// with the external partition's sites taking precedence for shared keys.
func (g *Graph) MergedCalls() map[Call]Sites {
	merged := make(map[Call]Sites, len(g.Calls.Internal)+len(g.Calls.External))
	for call, sites := range g.Calls.Internal {
		merged[call] = sites
	}
	for call, sites := range g.Calls.External {
		if existing, ok := merged[call]; ok {
			combined := make(Sites, len(existing)+len(sites))
			for pc, meta := range existing {
				combined[pc] = meta
			}
			for pc, meta := range sites {
				combined[pc] = meta
			}
			merged[call] = combined
			continue
		}
		merged[call] = sites
	}
	return merged
}
