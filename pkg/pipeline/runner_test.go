package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/store"
)

const testDocument = `{
	"forge": "mvn",
	"product": "demo.app",
	"version": "1.0.0",
	"timestamp": -1,
	"generator": "OPAL",
	"cha": {
		"internalTypes": {
			"/demo/App": {
				"sourceFile": "App.java",
				"methods": {
					"0": {"uri": "/demo/App.main()%2Fjava.lang%2FVoidType", "metadata": {}},
					"1": {"uri": "/demo/App.helper()%2Fjava.lang%2FVoidType", "metadata": {}}
				},
				"superClasses": [],
				"superInterfaces": [],
				"access": "public",
				"final": false
			}
		},
		"externalTypes": {}
	},
	"graph": {
		"internalCalls": [[0, 1, {"3": {"line": 7, "type": "invokestatic", "receiver": "/demo/App"}}]],
		"externalCalls": []
	}
}`

// flakyStore fails the first n transactions with the given error before
// delegating to the inner store.
type flakyStore struct {
	inner store.Store
	err   error
	fails int
	calls int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(store.DAO) error) error {
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	return f.inner.InTx(ctx, fn)
}

func testRunner(st store.Store) *Runner {
	return NewRunner(st, nil, log.New(io.Discard))
}

func TestExecute(t *testing.T) {
	m := store.NewMemory()
	result, err := testRunner(m).Execute(context.Background(), Options{
		Document: []byte(testDocument),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Compact == nil {
		t.Fatal("Execute() returned no compact graph")
	}
	if result.Stats.CallableCount != 2 || result.Stats.EdgeCount != 1 {
		t.Errorf("stats = %d callables, %d edges; want 2, 1",
			result.Stats.CallableCount, result.Stats.EdgeCount)
	}
	if result.Stats.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Stats.Attempts)
	}
	if _, _, _, _, callables, edges := m.Counts(); callables != 2 || edges != 1 {
		t.Errorf("store rows = %d callables, %d edges; want 2, 1", callables, edges)
	}
	if ts := m.VersionTimestamp(result.Compact.PackageVersionID); ts != nil {
		t.Errorf("unknown timestamp persisted as %v, want nil", ts)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	flaky := &flakyStore{
		inner: store.NewMemory(),
		err:   errors.New(errors.ErrCodeStoreTransient, "serialization failure"),
		fails: 2,
	}

	result, err := testRunner(flaky).Execute(context.Background(), Options{
		Document: []byte(testDocument),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("transactions opened = %d, want 3", flaky.calls)
	}
	if result.Stats.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Stats.Attempts)
	}
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	m := store.NewMemory()
	flaky := &flakyStore{
		inner: m,
		err:   errors.New(errors.ErrCodeStoreTransient, "deadlock detected"),
		fails: 100,
	}

	_, err := testRunner(flaky).Execute(context.Background(), Options{
		Document:   []byte(testDocument),
		RetryLimit: 4,
	})
	if err == nil {
		t.Fatal("Execute() succeeded past the retry budget")
	}
	if !errors.IsTransient(err) {
		t.Errorf("exhaustion error = %v, want transient code", err)
	}
	if flaky.calls != 4 {
		t.Errorf("transactions opened = %d, want 4", flaky.calls)
	}
	if packages, _, _, _, _, _ := m.Counts(); packages != 0 {
		t.Error("failed run left committed rows")
	}
}

func TestExecuteDoesNotRetryFatalErrors(t *testing.T) {
	flaky := &flakyStore{
		inner: store.NewMemory(),
		err:   errors.New(errors.ErrCodeStoreFatal, "relation does not exist"),
		fails: 100,
	}

	_, err := testRunner(flaky).Execute(context.Background(), Options{
		Document: []byte(testDocument),
	})
	if err == nil {
		t.Fatal("Execute() succeeded against a fatal store")
	}
	if flaky.calls != 1 {
		t.Errorf("transactions opened = %d, want 1", flaky.calls)
	}
}

func TestExecuteRejectsMalformedDocument(t *testing.T) {
	flaky := &flakyStore{inner: store.NewMemory()}

	_, err := testRunner(flaky).Execute(context.Background(), Options{
		Document: []byte(`{"product": "demo"}`),
	})
	if err == nil {
		t.Fatal("Execute() accepted a malformed document")
	}
	if !errors.IsFormat(err) {
		t.Errorf("error = %v, want format code", err)
	}
	if flaky.calls != 0 {
		t.Errorf("malformed document opened %d transactions, want 0", flaky.calls)
	}
}

func TestExecuteRequiresInput(t *testing.T) {
	_, err := testRunner(store.NewMemory()).Execute(context.Background(), Options{})
	if err == nil {
		t.Fatal("Execute() accepted empty options")
	}
}
