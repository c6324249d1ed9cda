// Package resolve converts extractor-provided call-site observations into a
// populated call-graph model.
//
// The extractor walks a compiled artifact's instructions and reports one
// Observation per discovered call site. The Resolver decides whether each
// observed target is resolvable to a known container, deduplicates repeated
// references to the same method, classifies the dispatch kind, and records
// the edge in the internal or external partition of the resulting graph.
//
// Resolution never fails for data-shape reasons: unknown instruction kinds
// degrade to the unknown dispatch, and targets missing from the type
// hierarchy degrade to unresolved methods under a substitute container.
package resolve

import (
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/stitchkb/stitchkb/pkg/callgraph"
)

// Ref is an extractor-provided reference to a method.
type Ref struct {
	Namespace string // declaring type/namespace path
	Signature string // method signature fragment
}

// Observation is one call site discovered by the extractor.
type Observation struct {
	Caller      Ref
	Callee      Ref
	Instruction string // raw dispatch-instruction name (e.g. "invokevirtual")
	Line        int    // source line of the call site
	PC          int    // program counter index of the call site
}

// Hierarchy is the type-hierarchy oracle supplied by the extractor. It is
// the resolver's only window into the analyzed artifact's class space.
type Hierarchy interface {
	// InApplicationScope reports whether the namespace belongs to the
	// artifact under analysis.
	InApplicationScope(namespace string) bool

	// Lookup resolves the declaring container of a namespace. The second
	// return value is false when the namespace is not in the hierarchy.
	Lookup(namespace string) (Container, bool)
}

// Resolver accumulates observations into a call-graph model for one
// artifact. It is not safe for concurrent use; one resolver serves one
// artifact end to end.
type Resolver struct {
	hierarchy Hierarchy
	graph     *callgraph.Graph
	logger    *log.Logger

	// Deduplication dictionaries keyed by Method.Key. A method reference is
	// looked up here before creating a new node, so repeated calls to the
	// same target collapse to one node with many incoming edges.
	resolved   map[string]*Method
	unresolved map[string]*Method

	nextID int64
}

// New creates a resolver for the artifact with the given coordinates.
// The logger may be nil.
func New(forge, product, version, generator string, hierarchy Hierarchy, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	g := callgraph.New(callgraph.FlavorTyped)
	g.Forge = forge
	g.Product = product
	g.Version = version
	g.Generator = generator
	return &Resolver{
		hierarchy:  hierarchy,
		graph:      g,
		logger:     logger,
		resolved:   make(map[string]*Method),
		unresolved: make(map[string]*Method),
	}
}

// Add processes one observed call site. Call sites whose containing method
// is outside the application scope are skipped entirely: calls originating
// outside the analyzed artifact are not recorded.
func (r *Resolver) Add(obs Observation) {
	if !r.hierarchy.InApplicationScope(obs.Caller.Namespace) {
		return
	}

	caller := r.findOrCreate(obs.Caller)
	callee := r.findOrCreate(obs.Callee)
	dispatch := ClassifyDispatch(obs.Instruction)
	if dispatch == DispatchUnknown && obs.Instruction != "" {
		r.logger.Debug("unrecognized dispatch instruction", "instruction", obs.Instruction)
	}

	site := map[string]any{
		"line":     obs.Line,
		"type":     obs.Instruction,
		"receiver": callee.TypeURI().String(),
	}
	call := callgraph.Call{Source: caller.LocalID(), Target: callee.LocalID()}

	// An edge is internal only when both endpoints live inside the analyzed
	// artifact; a callee resolved to another artifact is still external.
	calls := r.graph.Calls.External
	if caller.internal && callee.internal {
		calls = r.graph.Calls.Internal
	}
	sites, ok := calls[call]
	if !ok {
		sites = make(callgraph.Sites)
		calls[call] = sites
	}
	sites[strconv.Itoa(obs.PC)] = site
}

// Graph returns the populated model. The resolver must not be used after
// Graph is called.
func (r *Resolver) Graph() *callgraph.Graph {
	return r.graph
}

// findOrCreate returns the deduplicated method for the reference, creating
// it (and its node in the graph) on first encounter.
//
// A reference inside the application scope resolves to the artifact itself.
// A reference outside it resolves through the hierarchy to its declaring
// container; when that lookup fails, the method is recorded as unresolved
// under a substitute container rather than aborting resolution.
func (r *Resolver) findOrCreate(ref Ref) *Method {
	if r.hierarchy.InApplicationScope(ref.Namespace) {
		m := &Method{Namespace: ref.Namespace, Signature: ref.Signature, Resolved: true, internal: true}
		return r.intern(m, r.resolved, r.graph.InternalTypes)
	}

	if container, ok := r.hierarchy.Lookup(ref.Namespace); ok {
		m := &Method{Namespace: ref.Namespace, Signature: ref.Signature, Resolved: true, Container: container}
		return r.intern(m, r.resolved, r.graph.ExternalTypes)
	}

	m := &Method{Namespace: ref.Namespace, Signature: ref.Signature, Container: UnknownContainer}
	return r.intern(m, r.unresolved, r.graph.ExternalTypes)
}

// intern deduplicates m through the dictionary and materializes its node in
// the given type partition on first creation.
func (r *Resolver) intern(m *Method, dict map[string]*Method, types map[string]*callgraph.Type) *Method {
	if existing, ok := dict[m.Key()]; ok {
		return existing
	}

	m.localID = r.nextID
	r.nextID++
	dict[m.Key()] = m

	typeURI := m.TypeURI().String()
	t, ok := types[typeURI]
	if !ok {
		t = &callgraph.Type{Methods: make(callgraph.Methods)}
		types[typeURI] = t
	}
	t.Methods[m.localID] = &callgraph.Node{
		URI:      m.URI(),
		Metadata: map[string]any{},
	}
	return m
}
