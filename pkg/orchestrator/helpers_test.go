package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

func testGraph(t *testing.T) *workflow.Graph {
	t.Helper()

	g, err := workflow.NewGraph(workflow.AppDefinition{
		ID:            "vde",
		Title:         "Ligand Docking",
		SelectLigands: true,
		Widgets: []workflow.WidgetDefinition{
			{
				ID:      "load",
				Inputs:  []workflow.InputDefinition{{Name: "PDB_DATA", SourcePipe: "PDB_DATA"}},
				Outputs: []workflow.OutputDefinition{{ID: "prep.pdb"}, {ID: "prep.json"}},
			},
			{
				ID:      "run",
				Config:  map[string]interface{}{"image": "mst"},
				Inputs:  []workflow.InputDefinition{{Name: "prep.pdb", SourceWidgetID: "load", SourcePipe: "prep.pdb"}},
				Outputs: []workflow.OutputDefinition{{ID: "results.json"}},
			},
			{
				ID:     "results",
				Inputs: []workflow.InputDefinition{{Name: "results.json", SourceWidgetID: "run", SourcePipe: "results.json"}},
			},
		},
	})
	require.NoError(t, err)

	return g
}

type fakeSessions struct {
	mu        sync.Mutex
	startErr  error
	getErr    error
	upsertErr error
	snapshot  wire.Snapshot
	starts    []string
	upserts   []wire.Outputs
}

func (f *fakeSessions) Start(_ context.Context, appID, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts = append(f.starts, appID+"/"+email)

	return "s1", nil
}

func (f *fakeSessions) Get(context.Context, string) (wire.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.snapshot, f.getErr
}

func (f *fakeSessions) Upsert(_ context.Context, _ string, outputs wire.Outputs) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, outputs)

	// Merged into the out maps, as the session server does.
	widgets := make(map[string]wire.WidgetSnapshot, len(f.snapshot.Widgets)+len(outputs))
	for id, ws := range f.snapshot.Widgets {
		widgets[id] = ws
	}
	for id, pds := range outputs {
		ws := widgets[id]
		out := make(map[string]wire.PipeData, len(ws.Out)+len(pds))
		for name, pd := range ws.Out {
			out[name] = pd
		}
		for name, pd := range pds {
			out[name] = pd
		}
		ws.Out = out
		widgets[id] = ws
	}
	f.snapshot.Widgets = widgets

	return nil
}

func (f *fakeSessions) setUpsertErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErr = err
}

func (f *fakeSessions) setSnapshot(snap wire.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snap
}

func (f *fakeSessions) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.upserts)
}

func (f *fakeSessions) lastUpsert() wire.Outputs {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.upserts) == 0 {
		return nil
	}

	return f.upserts[len(f.upserts)-1]
}

type fakeCompute struct {
	mu        sync.Mutex
	submitErr error
	cancelErr error
	resp      wire.JobResponse
	submitted map[string]wire.JobRequest
	canceled  []string
}

func (f *fakeCompute) Submit(_ context.Context, _, widgetID string, req wire.JobRequest) (wire.JobResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return wire.JobResponse{}, f.submitErr
	}
	if f.submitted == nil {
		f.submitted = map[string]wire.JobRequest{}
	}
	f.submitted[widgetID] = req

	return f.resp, nil
}

func (f *fakeCompute) Cancel(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, runID)

	return nil
}

var errUnreachable = errors.New("dial tcp: connection refused")

type fetchResult struct {
	data  string
	err   error
	block chan struct{}
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]fetchResult
	started chan string
}

func newFakeFetcher(results map[string]fetchResult) *fakeFetcher {
	return &fakeFetcher{results: results, started: make(chan string, 16)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	r, ok := f.results[url]
	f.mu.Unlock()

	f.started <- url

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return nil, errUnreachable
	}

	return []byte(r.data), r.err
}
