package stitch

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stitchkb/stitchkb/pkg/callgraph"
	"github.com/stitchkb/stitchkb/pkg/ident"
	"github.com/stitchkb/stitchkb/pkg/store"
)

const typedDocument = `{
	"forge": "mvn",
	"product": "demo.app",
	"version": "1.2.3",
	"timestamp": 1285585185,
	"generator": "OPAL",
	"cha": {
		"internalTypes": {
			"/demo/App": {
				"sourceFile": "App.java",
				"methods": {
					"0": {"uri": "/demo/App.main(%2Fjava.lang%2FString%5B%5D)%2Fjava.lang%2FVoidType", "metadata": {"first": 10, "last": 20, "defined": true}},
					"1": {"uri": "/demo/App.helper()%2Fjava.lang%2FVoidType", "metadata": {"first": 25, "last": 30, "defined": true}}
				},
				"superClasses": ["/java.lang/Object"],
				"superInterfaces": [],
				"access": "public",
				"final": false
			}
		},
		"externalTypes": {
			"/java.io/PrintStream": {
				"sourceFile": "",
				"methods": {
					"2": {"uri": "//jdk$11/java.io/PrintStream.println(%2Fjava.lang%2FString)%2Fjava.lang%2FVoidType", "metadata": {}}
				},
				"superClasses": [],
				"superInterfaces": [],
				"access": "",
				"final": false
			}
		}
	},
	"graph": {
		"internalCalls": [
			[0, 1, {"4": {"line": 12, "type": "invokevirtual", "receiver": "/demo/App"}}]
		],
		"externalCalls": [
			[1, 2, {"9": {"line": 27, "type": "invokevirtual", "receiver": "/java.io/PrintStream"}}]
		]
	}
}`

func testStitcher(opts ...Option) *Stitcher {
	return New(log.New(io.Discard), opts...)
}

func stitchOnce(t *testing.T, s *Stitcher, m *store.Memory, g *callgraph.Graph) *CompactGraph {
	t.Helper()
	var compact *CompactGraph
	err := m.InTx(context.Background(), func(dao store.DAO) error {
		var err error
		compact, err = s.Stitch(context.Background(), dao, g)
		return err
	})
	if err != nil {
		t.Fatalf("Stitch() error = %v", err)
	}
	return compact
}

func TestStitchTypedGraph(t *testing.T) {
	g, err := callgraph.ParseDocument([]byte(typedDocument))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	m := store.NewMemory()
	compact := stitchOnce(t, testStitcher(), m, g)

	packages, versions, modules, files, callables, edges := m.Counts()
	if packages != 1 || versions != 1 || modules != 1 || files != 1 {
		t.Errorf("rows = %d packages, %d versions, %d modules, %d files; want 1 each",
			packages, versions, modules, files)
	}
	if callables != 3 {
		t.Errorf("callables = %d, want 3", callables)
	}
	if edges != 2 {
		t.Errorf("edges = %d, want 2", edges)
	}

	if compact.Forge != "mvn" || compact.Product != "demo.app" || compact.Version != "1.2.3" {
		t.Errorf("compact coordinates = %s:%s:%s", compact.Forge, compact.Product, compact.Version)
	}
	if compact.InternalCount != 2 {
		t.Errorf("InternalCount = %d, want 2", compact.InternalCount)
	}
	if len(compact.NodeIDs) != 3 {
		t.Fatalf("NodeIDs = %v, want 3 nodes", compact.NodeIDs)
	}
	if len(compact.Edges) != 2 {
		t.Fatalf("Edges = %v, want 2 edges", compact.Edges)
	}

	// The first internal callable owns line metadata pruned into columns.
	rec, ok := m.Callable(compact.NodeIDs[0])
	if !ok {
		t.Fatalf("callable %d not stored", compact.NodeIDs[0])
	}
	if !rec.Internal {
		t.Error("first compact node is not internal")
	}
	if rec.FirstLine == nil || *rec.FirstLine != 10 || rec.LastLine == nil || *rec.LastLine != 20 {
		t.Errorf("line range = %v..%v, want 10..20", rec.FirstLine, rec.LastLine)
	}
	if _, stillThere := rec.Metadata["first"]; stillThere {
		t.Error("projected key 'first' left in metadata")
	}
	if rec.Metadata["defined"] != true {
		t.Errorf("metadata lost unrelated key: %v", rec.Metadata)
	}

	// Externals carry the no-module sentinel.
	ext, ok := m.Callable(compact.NodeIDs[2])
	if !ok {
		t.Fatal("external callable not stored")
	}
	if ext.ModuleID != store.NoModule || ext.Internal {
		t.Errorf("external callable = %+v, want moduleID %d", ext, store.NoModule)
	}

	edge, ok := m.Edge(compact.Edges[0].Source, compact.Edges[0].Target)
	if !ok {
		t.Fatal("first edge not stored")
	}
	want := store.Receiver{Line: 12, Dispatch: "virtual", URI: "/demo/App"}
	if len(edge.Receivers) != 1 || edge.Receivers[0] != want {
		t.Errorf("receivers = %+v, want [%+v]", edge.Receivers, want)
	}

	// The compact projection keeps the receiver rows, and they survive the
	// wire form.
	if len(compact.Edges[0].Receivers) != 1 || compact.Edges[0].Receivers[0] != want {
		t.Errorf("compact receivers = %+v, want [%+v]", compact.Edges[0].Receivers, want)
	}
	data, err := compact.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := ParseCompactGraph(data)
	if err != nil {
		t.Fatalf("ParseCompactGraph() error = %v", err)
	}
	if len(back.Edges) != 2 || len(back.Edges[0].Receivers) != 1 || back.Edges[0].Receivers[0] != want {
		t.Errorf("marshaled edges = %+v, want receivers preserved", back.Edges)
	}

	// The timestamp is in seconds and must be scaled to milliseconds.
	ts := m.VersionTimestamp(compact.PackageVersionID)
	if ts == nil || ts.Unix() != 1285585185 {
		t.Errorf("version timestamp = %v, want 2010-09-27", ts)
	}
}

const cDocument = `{
	"forge": "debian",
	"product": "zlib",
	"version": "1.2.11",
	"timestamp": 0,
	"generator": "cscout",
	"functions": {
		"internal": {
			"binaries": {
				"libz.so": {"methods": {
					"0": {"uri": "/lib/deflate()", "metadata": {"first": 5, "last": 9}, "files": ["src/deflate.c"]},
					"1": {"uri": "/lib/inflate()", "metadata": {}, "files": ["src/inflate.c", "src/deflate.c"]}
				}}
			},
			"static_functions": {"methods": {
				"2": {"uri": "/lib/fill_window()", "metadata": {}, "files": ["src/deflate.c"]}
			}}
		},
		"external": {
			"products": {},
			"static_functions": {},
			"undefined": {"methods": {
				"3": {"uri": "//UNDEFINED/libc/free()", "metadata": {}, "files": []}
			}}
		}
	},
	"graph": {
		"internalCalls": [
			[0, 1, {}]
		],
		"externalCalls": [
			[1, 3, {"0": {"line": 7, "type": "", "receiver": ""}}]
		]
	}
}`

func TestStitchCGraphLinksFiles(t *testing.T) {
	g, err := callgraph.ParseDocument([]byte(cDocument))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	m := store.NewMemory()
	compact := stitchOnce(t, testStitcher(), m, g)

	// Two internal units become modules: the libz.so binary and the static
	// function bucket.
	_, _, modules, files, callables, edges := m.Counts()
	if modules != 2 {
		t.Errorf("modules = %d, want 2", modules)
	}
	// Per-node files deduplicate within a unit and across units: deflate.c is
	// shared by both modules but stored once.
	if files != 2 {
		t.Errorf("files = %d, want 2 distinct paths", files)
	}
	if got := m.LinkCount(); got != 3 {
		t.Errorf("module-file links = %d, want 3", got)
	}
	if callables != 4 || edges != 2 {
		t.Errorf("callables = %d, edges = %d; want 4 and 2", callables, edges)
	}

	if compact.InternalCount != 3 {
		t.Errorf("InternalCount = %d, want 3", compact.InternalCount)
	}
	if len(compact.NodeIDs) != 4 {
		t.Errorf("NodeIDs = %v, want 4 nodes", compact.NodeIDs)
	}

	// The undefined external carries the no-module sentinel.
	ext, ok := m.Callable(compact.NodeIDs[3])
	if !ok {
		t.Fatal("external callable not stored")
	}
	if ext.ModuleID != store.NoModule || ext.Internal {
		t.Errorf("external callable = %+v, want moduleID %d", ext, store.NoModule)
	}

	// A zero timestamp is unknown and stored as null.
	if ts := m.VersionTimestamp(compact.PackageVersionID); ts != nil {
		t.Errorf("version timestamp = %v, want nil", ts)
	}
}

func TestStitchIsIdempotent(t *testing.T) {
	m := store.NewMemory()
	s := testStitcher()

	parse := func() *callgraph.Graph {
		g, err := callgraph.ParseDocument([]byte(typedDocument))
		if err != nil {
			t.Fatalf("ParseDocument() error = %v", err)
		}
		return g
	}

	first := stitchOnce(t, s, m, parse())
	second := stitchOnce(t, s, m, parse())

	if first.PackageVersionID != second.PackageVersionID {
		t.Errorf("package version ids differ: %d vs %d",
			first.PackageVersionID, second.PackageVersionID)
	}
	if !reflect.DeepEqual(first.NodeIDs, second.NodeIDs) {
		t.Errorf("global ids differ across restitch: %v vs %v", first.NodeIDs, second.NodeIDs)
	}
	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Errorf("edges differ across restitch: %v vs %v", first.Edges, second.Edges)
	}
	if _, _, _, _, callables, edges := m.Counts(); callables != 3 || edges != 2 {
		t.Errorf("restitch grew the store: %d callables, %d edges", callables, edges)
	}
}

func TestStitchBatchesEdges(t *testing.T) {
	g := callgraph.New(callgraph.FlavorTyped)
	g.Forge, g.Product, g.Version, g.Generator = "debian", "libdemo", "0.1", "cscout"

	typ := &callgraph.Type{Methods: callgraph.Methods{}}
	for i := int64(0); i < 6; i++ {
		typ.Methods[i] = &callgraph.Node{
			URI: ident.ID{Namespace: "demo", Entity: entityName(i)},
		}
	}
	g.InternalTypes["/demo/T"] = typ
	for i := int64(0); i < 5; i++ {
		g.Calls.Internal[callgraph.Call{Source: i, Target: i + 1}] = callgraph.Sites{}
	}

	m := store.NewMemory()
	compact := stitchOnce(t, testStitcher(WithBatchSize(2)), m, g)

	if got := m.EdgeBatchSizes(); !reflect.DeepEqual(got, []int{2, 2, 1}) {
		t.Errorf("EdgeBatchSizes() = %v, want [2 2 1]", got)
	}
	if len(compact.Edges) != 5 {
		t.Errorf("compact edges = %d, want 5", len(compact.Edges))
	}
}

func TestStitchRejectsUnknownEndpoint(t *testing.T) {
	g := callgraph.New(callgraph.FlavorTyped)
	g.Forge, g.Product, g.Version = "mvn", "demo", "1.0"
	g.InternalTypes["/demo/T"] = &callgraph.Type{Methods: callgraph.Methods{
		0: {URI: ident.ID{Namespace: "demo", Entity: "f()"}},
	}}
	g.Calls.Internal[callgraph.Call{Source: 0, Target: 99}] = callgraph.Sites{}

	m := store.NewMemory()
	err := m.InTx(context.Background(), func(dao store.DAO) error {
		_, err := testStitcher().Stitch(context.Background(), dao, g)
		return err
	})
	if err == nil {
		t.Fatal("Stitch() accepted edge with unknown endpoint")
	}
	if packages, _, _, _, _, _ := m.Counts(); packages != 0 {
		t.Error("failed stitch left committed rows")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want *time.Time
	}{
		{name: "Unknown", in: callgraph.TimestampUnknown, want: nil},
		{name: "Zero", in: 0, want: nil},
		{name: "Seconds", in: 1285585185, want: timePtr(time.UnixMilli(1285585185000))},
		{name: "Milliseconds", in: 1285585185000, want: timePtr(time.UnixMilli(1285585185000))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTimestamp(tt.in)
			switch {
			case got == nil && tt.want == nil:
			case got == nil || tt.want == nil:
				t.Errorf("NormalizeTimestamp(%d) = %v, want %v", tt.in, got, tt.want)
			case !got.Equal(*tt.want):
				t.Errorf("NormalizeTimestamp(%d) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompactGraphOutputPath(t *testing.T) {
	c := &CompactGraph{Forge: "mvn", Product: "demo.app", Version: "1.2.3"}
	want := "mvn/d/demo.app/demo.app_1.2.3.json"
	if got := c.OutputPath(); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
}

func TestCompactGraphRoundTrip(t *testing.T) {
	c := &CompactGraph{
		PackageVersionID: 42,
		Forge:            "debian",
		Product:          "libdemo",
		Version:          "0.1",
		NodeIDs:          []int64{7, 8, 9},
		InternalCount:    2,
		Edges: []CompactEdge{
			{Source: 7, Target: 8, Receivers: []store.Receiver{{Line: 3, Dispatch: "static", URI: "/demo/T"}}},
			{Source: 8, Target: 9},
		},
	}
	data, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := ParseCompactGraph(data)
	if err != nil {
		t.Fatalf("ParseCompactGraph() error = %v", err)
	}
	if !reflect.DeepEqual(c, back) {
		t.Errorf("round trip mismatch: %+v vs %+v", c, back)
	}
}

func entityName(i int64) string {
	return "f" + string(rune('a'+i)) + "()"
}

func timePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
