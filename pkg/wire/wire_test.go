package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/molsim/pkg/workflow"
)

func TestSnapshotPipeDatas(t *testing.T) {
	t.Parallel()

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{
		"widgets": {
			"zeta": {"out": {"x": {"type": "inline", "value": "1"}}},
			"run": {"out": {"results.json": {"type": "url", "value": "http://a/r.json"}}, "status": "running"},
			"load": {
				"in": {"PDB_DATA": {"type": "inline", "value": "HEADER"}},
				"out": {"prep.pdb": {"type": "url", "value": "http://a/p.pdb", "selectedLigand": "MOL"}},
				"status": "completed"
			},
			"enter_email": {"out": {"email": {"type": "inline", "value": "a@b.com"}}, "status": "bogus"}
		}
	}`), &snap))

	widgets := []workflow.Widget{{ID: workflow.EnterEmailWidgetID}, {ID: "load"}, {ID: "run"}}
	pds := snap.PipeDatas(widgets)
	require.Len(t, pds, 5)
	assert.Equal(t, workflow.NewInline(workflow.EnterEmailWidgetID, "email", "a@b.com"), pds[0])
	assert.Equal(t, workflow.NewInline("load", "PDB_DATA", "HEADER"), pds[1])
	assert.Equal(t, workflow.NewURL("load", "prep.pdb", "http://a/p.pdb").WithSelectedLigand("MOL"), pds[2])
	assert.Equal(t, "run", pds[3].WidgetID)
	assert.Equal(t, "zeta", pds[4].WidgetID)

	assert.Equal(t, map[string]workflow.Status{
		"load": workflow.StatusCompleted,
		"run":  workflow.StatusRunning,
	}, snap.Statuses())
}

func TestFromPipeDatas(t *testing.T) {
	t.Parallel()

	p := workflow.Unflatten([]workflow.PipeData{
		workflow.NewInline("load", "PDB_DATA", "HEADER"),
		workflow.NewURL("load", "prep.pdb", "http://a/p.pdb").
			WithFetched(workflow.Content{Format: workflow.FormatText, Text: "ATOM"}),
	})

	data, err := json.Marshal(FromPipeDatas(p))
	require.NoError(t, err)
	assert.JSONEq(t, `{"load": {
		"PDB_DATA": {"type": "inline", "value": "HEADER"},
		"prep.pdb": {"type": "url", "value": "http://a/p.pdb"}
	}}`, string(data))
}

func TestJobDocuments(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(JobRequest{Inputs: Named([]workflow.PipeData{workflow.NewInline("load", "PDB_DATA", "HEADER")})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputs": [{"name": "PDB_DATA", "type": "inline", "value": "HEADER"}]}`, string(data))

	var resp JobResponse
	require.NoError(t, json.Unmarshal([]byte(`{"jobId": "j1", "outputs": [{"name": "prep.pdb", "type": "inline", "value": "ATOM"}, {"name": "odd", "type": "blob", "value": "?"}]}`), &resp))
	assert.Equal(t, "j1", resp.JobID)
	assert.Equal(t, []workflow.PipeData{
		workflow.NewInline("load", "prep.pdb", "ATOM"),
		workflow.NewInline("load", "odd", "?"),
	}, Bind("load", resp.Outputs))
}

func TestNotification(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewNotification(MethodSession, "s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc": "2.0", "method": "session", "params": {"sessionId": "s1"}}`, string(data))
}
