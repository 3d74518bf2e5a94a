// Package wire holds the JSON documents exchanged with the session store, the compute service and the push
// channel.
package wire

import (
	"sort"

	"github.com/askiada/molsim/pkg/workflow"
)

// PipeData is the persisted form of a workflow.PipeData. Fetched content is never persisted.
type PipeData struct {
	Type           string `json:"type"`
	Value          string `json:"value"`
	SelectedLigand string `json:"selectedLigand,omitempty"`
}

// NamedPipeData is a PipeData carrying its pipe name, as found in job inputs and outputs.
type NamedPipeData struct {
	Name string `json:"name"`
	PipeData
}

// StartRequest is the body of POST /session/start/{appId}.
type StartRequest struct {
	Email string `json:"email"`
}

// StartResponse is the answer to POST /session/start/{appId}.
type StartResponse struct {
	SessionID string `json:"sessionId"`
}

// WidgetSnapshot is the state of one widget in a session.
type WidgetSnapshot struct {
	In     map[string]PipeData `json:"in,omitempty"`
	Out    map[string]PipeData `json:"out,omitempty"`
	Status string              `json:"status,omitempty"`
}

// Snapshot is the answer to GET /session/{id}.
type Snapshot struct {
	ID      string                    `json:"id,omitempty"`
	AppID   string                    `json:"appId,omitempty"`
	Email   string                    `json:"email,omitempty"`
	Widgets map[string]WidgetSnapshot `json:"widgets"`
}

// Outputs is the body of POST /session/outputs/{id}: pipe data by pipe name by widget id.
type Outputs map[string]map[string]PipeData

// JobRequest is the body of POST /ccc/run/{runId}/{widgetId}.
type JobRequest struct {
	Config map[string]interface{} `json:"config,omitempty"`
	Inputs []NamedPipeData        `json:"inputs"`
}

// JobResponse is the answer to a job submission. Outputs are set when the job ran synchronously.
type JobResponse struct {
	JobID   string          `json:"jobId"`
	Outputs []NamedPipeData `json:"outputs,omitempty"`
}

// CancelRequest is the body of POST /run/cancel.
type CancelRequest struct {
	RunID string `json:"runId"`
}

// ArtifactResponse is the answer to POST /artifacts/{namespace}.
type ArtifactResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// StatusRequest is the body of POST /session/status/{id}: step status by widget id.
type StatusRequest map[string]workflow.Status

// ErrorBody is the JSON body of every non 2xx answer.
type ErrorBody struct {
	Error string `json:"error"`
}

// FromPipeData converts pd to its persisted form.
func FromPipeData(pd workflow.PipeData) PipeData {
	return PipeData{Type: string(pd.Type), Value: pd.Value, SelectedLigand: pd.SelectedLigand}
}

// ToPipeData binds a persisted pipe data to a widget pipe. Unknown types are read as inline.
func (p PipeData) ToPipeData(widgetID, pipeName string) workflow.PipeData {
	kind, ok := workflow.ParseKind(p.Type)
	if !ok {
		kind = workflow.KindInline
	}

	return workflow.PipeData{
		WidgetID:       widgetID,
		PipeName:       pipeName,
		Type:           kind,
		Value:          p.Value,
		SelectedLigand: p.SelectedLigand,
	}
}

// FromPipeDatas converts a run pipe data map to the upsert document.
func FromPipeDatas(p workflow.PipeDatasByWidget) Outputs {
	res := make(Outputs)
	for _, id := range p.WidgetIDs() {
		byName := make(map[string]PipeData)
		for _, pd := range p.Of(id) {
			byName[pd.PipeName] = FromPipeData(pd)
		}
		res[id] = byName
	}

	return res
}

// Named converts pds to job inputs.
func Named(pds []workflow.PipeData) []NamedPipeData {
	res := make([]NamedPipeData, 0, len(pds))
	for _, pd := range pds {
		res = append(res, NamedPipeData{Name: pd.PipeName, PipeData: FromPipeData(pd)})
	}

	return res
}

// Bind converts job outputs to pipe data of widgetID.
func Bind(widgetID string, outputs []NamedPipeData) []workflow.PipeData {
	res := make([]workflow.PipeData, 0, len(outputs))
	for _, out := range outputs {
		res = append(res, out.ToPipeData(widgetID, out.Name))
	}

	return res
}

// PipeDatas flattens a snapshot in widget order. Widgets unknown to widgets come last, sorted by id.
// Within a widget, inputs come before outputs, each sorted by pipe name.
func (s Snapshot) PipeDatas(widgets []workflow.Widget) []workflow.PipeData {
	var res []workflow.PipeData
	for _, id := range s.widgetOrder(widgets) {
		ws := s.Widgets[id]
		for _, group := range []map[string]PipeData{ws.In, ws.Out} {
			for _, name := range sortedKeys(group) {
				res = append(res, group[name].ToPipeData(id, name))
			}
		}
	}

	return res
}

// Statuses returns the step statuses reported by the snapshot. Unknown statuses are ignored.
func (s Snapshot) Statuses() map[string]workflow.Status {
	res := make(map[string]workflow.Status)
	for id, ws := range s.Widgets {
		if status, ok := workflow.ParseStatus(ws.Status); ok {
			res[id] = status
		}
	}

	return res
}

func (s Snapshot) widgetOrder(widgets []workflow.Widget) []string {
	seen := make(map[string]struct{}, len(s.Widgets))
	ids := make([]string, 0, len(s.Widgets))
	for _, w := range widgets {
		if _, ok := s.Widgets[w.ID]; ok {
			ids = append(ids, w.ID)
			seen[w.ID] = struct{}{}
		}
	}

	var rest []string
	for id := range s.Widgets {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)

	return append(ids, rest...)
}

func sortedKeys(m map[string]PipeData) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
