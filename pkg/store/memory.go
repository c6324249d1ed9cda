package store

import (
	"context"
	"maps"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests and local development. It honors
// the same insert-or-get and global-ID semantics as the Postgres store, and
// restores its previous state when a transaction callback fails, so failed
// attempts leave zero committed rows.
type Memory struct {
	mu     sync.Mutex
	nextID int64

	packages     map[string]int64 // forge!product → id
	versions     map[string]int64 // packageID|version|generator → id
	timestamps   map[int64]*time.Time
	modules      map[string]int64 // packageVersionID|namespace → id
	moduleMeta   map[int64]map[string]any
	files        map[string]int64 // packageVersionID|path → id
	links        map[[2]int64]bool
	callables    map[string]int64 // moduleID|uri → global ID
	callableRows map[int64]CallableRecord
	edges        map[[2]int64]EdgeRecord

	// edgeBatches records the size of every edge batch received, letting
	// tests assert the batching behavior.
	edgeBatches []int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:       1,
		packages:     make(map[string]int64),
		versions:     make(map[string]int64),
		timestamps:   make(map[int64]*time.Time),
		modules:      make(map[string]int64),
		moduleMeta:   make(map[int64]map[string]any),
		files:        make(map[string]int64),
		links:        make(map[[2]int64]bool),
		callables:    make(map[string]int64),
		callableRows: make(map[int64]CallableRecord),
		edges:        make(map[[2]int64]EdgeRecord),
	}
}

// InTx implements Store. State changes are rolled back when fn fails.
func (m *Memory) InTx(ctx context.Context, fn func(DAO) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.snapshot()
	if err := fn(&memDAO{m: m, ctx: ctx}); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

type memSnapshot struct {
	nextID       int64
	packages     map[string]int64
	versions     map[string]int64
	timestamps   map[int64]*time.Time
	modules      map[string]int64
	moduleMeta   map[int64]map[string]any
	files        map[string]int64
	links        map[[2]int64]bool
	callables    map[string]int64
	callableRows map[int64]CallableRecord
	edges        map[[2]int64]EdgeRecord
	edgeBatches  []int
}

func (m *Memory) snapshot() memSnapshot {
	return memSnapshot{
		nextID:       m.nextID,
		packages:     maps.Clone(m.packages),
		versions:     maps.Clone(m.versions),
		timestamps:   maps.Clone(m.timestamps),
		modules:      maps.Clone(m.modules),
		moduleMeta:   maps.Clone(m.moduleMeta),
		files:        maps.Clone(m.files),
		links:        maps.Clone(m.links),
		callables:    maps.Clone(m.callables),
		callableRows: maps.Clone(m.callableRows),
		edges:        maps.Clone(m.edges),
		edgeBatches:  append([]int(nil), m.edgeBatches...),
	}
}

func (m *Memory) restore(s memSnapshot) {
	m.nextID = s.nextID
	m.packages = s.packages
	m.versions = s.versions
	m.timestamps = s.timestamps
	m.modules = s.modules
	m.moduleMeta = s.moduleMeta
	m.files = s.files
	m.links = s.links
	m.callables = s.callables
	m.callableRows = s.callableRows
	m.edges = s.edges
	m.edgeBatches = s.edgeBatches
}

// Counts returns row counts for assertions: packages, versions, modules,
// files, callables, edges.
func (m *Memory) Counts() (packages, versions, modules, files, callables, edges int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packages), len(m.versions), len(m.modules), len(m.files),
		len(m.callables), len(m.edges)
}

// Callable returns the stored row for a global ID.
func (m *Memory) Callable(globalID int64) (CallableRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.callableRows[globalID]
	return r, ok
}

// Edge returns the stored edge row for a (source, target) pair of global IDs.
func (m *Memory) Edge(source, target int64) (EdgeRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.edges[[2]int64{source, target}]
	return r, ok
}

// LinkCount returns the number of module-file link rows.
func (m *Memory) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// EdgeBatchSizes returns the sizes of the edge batches received so far.
func (m *Memory) EdgeBatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.edgeBatches...)
}

// VersionTimestamp returns the created-at timestamp stored for a
// package-version row.
func (m *Memory) VersionTimestamp(packageVersionID int64) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timestamps[packageVersionID]
}

// memDAO applies operations directly to the locked Memory; InTx restores a
// snapshot on failure.
type memDAO struct {
	m   *Memory
	ctx context.Context
}

var _ DAO = (*memDAO)(nil)

func (d *memDAO) id() int64 {
	id := d.m.nextID
	d.m.nextID++
	return id
}

func insertOrGet(table map[string]int64, key string, next func() int64) int64 {
	if id, ok := table[key]; ok {
		return id
	}
	id := next()
	table[key] = id
	return id
}

func (d *memDAO) InsertPackage(_ context.Context, forge, product string) (int64, error) {
	return insertOrGet(d.m.packages, forge+"!"+product, d.id), nil
}

func (d *memDAO) InsertPackageVersion(_ context.Context, packageID int64, generator, version, _ string, createdAt *time.Time) (int64, error) {
	key := versionKey(packageID, version, generator)
	id := insertOrGet(d.m.versions, key, d.id)
	d.m.timestamps[id] = createdAt
	return id, nil
}

func (d *memDAO) InsertModule(_ context.Context, packageVersionID int64, namespace string, metadata map[string]any) (int64, error) {
	id := insertOrGet(d.m.modules, versionKey(packageVersionID, namespace, ""), d.id)
	d.m.moduleMeta[id] = metadata
	return id, nil
}

func (d *memDAO) InsertFile(_ context.Context, packageVersionID int64, path string) (int64, error) {
	return insertOrGet(d.m.files, versionKey(packageVersionID, path, ""), d.id), nil
}

func (d *memDAO) LinkModuleFile(_ context.Context, moduleID, fileID int64) error {
	d.m.links[[2]int64{moduleID, fileID}] = true
	return nil
}

func (d *memDAO) InsertCallables(_ context.Context, records []CallableRecord) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		key := versionKey(r.ModuleID, r.URI, "")
		id := insertOrGet(d.m.callables, key, d.id)
		d.m.callableRows[id] = r
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *memDAO) BatchInsertEdges(_ context.Context, records []EdgeRecord) error {
	for _, r := range records {
		d.m.edges[[2]int64{r.Source, r.Target}] = r
	}
	d.m.edgeBatches = append(d.m.edgeBatches, len(records))
	return nil
}

func versionKey(id int64, a, b string) string {
	return strconv.FormatInt(id, 10) + "|" + a + "|" + b
}

var _ Store = (*Memory)(nil)
