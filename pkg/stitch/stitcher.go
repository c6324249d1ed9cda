// Package stitch persists one artifact's call graph into the shared
// metadata store and projects it onto store-assigned global IDs.
//
// Stitching runs inside a single store transaction: the package and
// package-version rows are inserted (or fetched), every internal unit
// becomes a module row linked to its source files, all callables are staged
// internal-first and exchanged for global IDs in one pass, and the merged
// edge set is translated and written in batches. The resulting CompactGraph
// is the artifact's footprint in the global callable space.
package stitch

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stitchkb/stitchkb/pkg/callgraph"
	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/resolve"
	"github.com/stitchkb/stitchkb/pkg/store"
)

// DefaultBatchSize is the number of edge rows written per batch insert.
const DefaultBatchSize = 1000

// millisPerYear decides whether an artifact timestamp is expressed in
// seconds or milliseconds: anything below one year of milliseconds is
// treated as seconds.
const millisPerYear = 1000 * 60 * 60 * 24 * 365

// Stitcher writes call graphs through a store DAO. The zero value is not
// usable; construct with New.
type Stitcher struct {
	batchSize int
	logger    *log.Logger
}

// Option configures a Stitcher.
type Option func(*Stitcher)

// WithBatchSize overrides the edge insertion batch size.
func WithBatchSize(n int) Option {
	return func(s *Stitcher) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a Stitcher logging through the given logger.
func New(logger *log.Logger, opts ...Option) *Stitcher {
	s := &Stitcher{
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stitch persists g through dao and returns its compact projection. The dao
// must be scoped to one open transaction; Stitch never commits or rolls
// back itself.
func (s *Stitcher) Stitch(ctx context.Context, dao store.DAO, g *callgraph.Graph) (*CompactGraph, error) {
	packageID, err := dao.InsertPackage(ctx, g.Forge, g.Product)
	if err != nil {
		return nil, err
	}

	pvID, err := dao.InsertPackageVersion(ctx, packageID, g.Generator, g.Version,
		g.Architecture, NormalizeTimestamp(g.Timestamp))
	if err != nil {
		return nil, err
	}

	internal := g.InternalUnits()
	external := g.ExternalUnits()

	var staged []store.CallableRecord
	for _, unit := range internal {
		moduleID, err := dao.InsertModule(ctx, pvID, unit.Name, unit.Metadata)
		if err != nil {
			return nil, err
		}
		if err := linkFiles(ctx, dao, pvID, moduleID, unit); err != nil {
			return nil, err
		}
		staged = stageUnit(staged, unit, moduleID, true)
	}
	internalCount := len(staged)

	for _, unit := range external {
		staged = stageUnit(staged, unit, store.NoModule, false)
	}

	globalIDs, err := dao.InsertCallables(ctx, staged)
	if err != nil {
		return nil, err
	}
	if len(globalIDs) != len(staged) {
		return nil, errors.New(errors.ErrCodeStoreFatal,
			"store returned %d global ids for %d callables", len(globalIDs), len(staged))
	}

	localToGlobal := make(map[int64]int64, len(staged))
	for i, rec := range staged {
		localToGlobal[rec.LocalID] = globalIDs[i]
	}

	edges, err := translateEdges(g, localToGlobal)
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(edges); start += s.batchSize {
		end := min(start+s.batchSize, len(edges))
		if err := dao.BatchInsertEdges(ctx, edges[start:end]); err != nil {
			return nil, err
		}
	}

	// The compact edges mirror the staged records receiver-for-receiver; the
	// downstream store needs the call-site detail, not just the pair.
	compactEdges := make([]CompactEdge, len(edges))
	for i, e := range edges {
		compactEdges[i] = CompactEdge{
			Source:    e.Source,
			Target:    e.Target,
			Receivers: e.Receivers,
			Metadata:  e.Metadata,
		}
	}

	nodes, numInternal := dedupNodes(globalIDs, internalCount)

	s.logger.Debug("stitched artifact",
		"artifact", g.String(),
		"package_version_id", pvID,
		"callables", len(staged),
		"internal", internalCount,
		"edges", len(edges))

	return &CompactGraph{
		PackageVersionID: pvID,
		Forge:            g.Forge,
		Product:          g.Product,
		Version:          g.Version,
		NodeIDs:          nodes,
		InternalCount:    numInternal,
		Edges:            compactEdges,
	}, nil
}

// NormalizeTimestamp converts an artifact timestamp to a store value.
// Unknown or non-positive timestamps map to nil. Values too small to be
// milliseconds are treated as seconds and scaled up.
func NormalizeTimestamp(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	if ts/millisPerYear < 1 {
		ts *= 1000
	}
	t := time.UnixMilli(ts).UTC()
	return &t
}

// linkFiles inserts and links the unit's source files. Typed units declare
// one file on the unit; C units declare files per node.
func linkFiles(ctx context.Context, dao store.DAO, pvID, moduleID int64, unit callgraph.Unit) error {
	paths := unit.SourceFiles()
	for _, p := range paths {
		fileID, err := dao.InsertFile(ctx, pvID, p)
		if err != nil {
			return err
		}
		if err := dao.LinkModuleFile(ctx, moduleID, fileID); err != nil {
			return err
		}
	}
	return nil
}

// stageUnit appends the unit's methods as callable records in ascending
// local ID order.
func stageUnit(staged []store.CallableRecord, unit callgraph.Unit, moduleID int64, internal bool) []store.CallableRecord {
	for _, localID := range unit.SortedLocalIDs() {
		node := unit.Methods[localID]
		first, last, meta := projectLines(node.Metadata)
		staged = append(staged, store.CallableRecord{
			LocalID:   localID,
			ModuleID:  moduleID,
			URI:       node.URI.Schemeless(),
			Internal:  internal,
			FirstLine: first,
			LastLine:  last,
			Metadata:  meta,
		})
	}
	return staged
}

// projectLines pulls the well-known line-range keys out of the node
// metadata into typed columns, returning the metadata without them.
// Ill-typed values stay in the metadata blob untouched.
func projectLines(meta map[string]any) (first, last *int, rest map[string]any) {
	if len(meta) == 0 {
		return nil, nil, meta
	}
	rest = make(map[string]any, len(meta))
	for k, v := range meta {
		rest[k] = v
	}
	if v, ok := asInt(rest["first"]); ok {
		first = &v
		delete(rest, "first")
	}
	if v, ok := asInt(rest["last"]); ok {
		last = &v
		delete(rest, "last")
	}
	return first, last, rest
}

// asInt accepts the numeric shapes a decoded document can produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// translateEdges converts the merged local edge set to global-ID edge
// records, sorted by (source, target) for deterministic batches. An edge
// endpoint missing from the local ID space is a malformed document.
func translateEdges(g *callgraph.Graph, localToGlobal map[int64]int64) ([]store.EdgeRecord, error) {
	merged := g.MergedCalls()

	calls := make([]callgraph.Call, 0, len(merged))
	for call := range merged {
		calls = append(calls, call)
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].Source != calls[j].Source {
			return calls[i].Source < calls[j].Source
		}
		return calls[i].Target < calls[j].Target
	})

	records := make([]store.EdgeRecord, 0, len(calls))
	for _, call := range calls {
		source, ok := localToGlobal[call.Source]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidDocument,
				"edge references unknown local id %d", call.Source)
		}
		target, ok := localToGlobal[call.Target]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidDocument,
				"edge references unknown local id %d", call.Target)
		}
		receivers, meta := projectSites(merged[call])
		records = append(records, store.EdgeRecord{
			Source:    source,
			Target:    target,
			Receivers: receivers,
			Metadata:  meta,
		})
	}
	return records, nil
}

// projectSites converts per-call-site metadata into receiver rows, in
// ascending program counter order. Keys beyond the receiver triple stay in
// the edge metadata blob keyed by program counter.
func projectSites(sites callgraph.Sites) ([]store.Receiver, map[string]any) {
	pcs := make([]string, 0, len(sites))
	for pc := range sites {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool {
		a, errA := strconv.Atoi(pcs[i])
		b, errB := strconv.Atoi(pcs[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return pcs[i] < pcs[j]
	})

	receivers := make([]store.Receiver, 0, len(pcs))
	var meta map[string]any
	for _, pc := range pcs {
		site := sites[pc]
		line := -1
		if v, ok := asInt(site["line"]); ok {
			line = v
		}
		kind, _ := site["type"].(string)
		uri, _ := site["receiver"].(string)
		receivers = append(receivers, store.Receiver{
			Line:     line,
			Dispatch: resolve.ClassifyDispatch(kind),
			URI:      uri,
		})

		for k, v := range site {
			switch k {
			case "line", "type", "receiver":
				continue
			}
			if meta == nil {
				meta = make(map[string]any)
			}
			extra, ok := meta[pc].(map[string]any)
			if !ok {
				extra = make(map[string]any)
				meta[pc] = extra
			}
			extra[k] = v
		}
	}
	return receivers, meta
}

// dedupNodes produces the compact node list: first occurrence of every
// global ID in staging order, internal callables first. Restitching an
// artifact can hand back the same global ID for more than one staged row,
// so the internal count is recomputed after deduplication.
func dedupNodes(globalIDs []int64, internalCount int) ([]int64, int) {
	seen := make(map[int64]bool, len(globalIDs))
	nodes := make([]int64, 0, len(globalIDs))
	numInternal := 0
	for i, gid := range globalIDs {
		if seen[gid] {
			continue
		}
		seen[gid] = true
		nodes = append(nodes, gid)
		if i < internalCount {
			numInternal++
		}
	}
	return nodes, numInternal
}
