// Package orchestrator drives one run of an app: it starts or loads the session, stores user input, submits
// widget jobs to the compute service, ingests the pipe data they produce and follows the session until the
// run ends.
//
// Every change to the pipe data of the run is upserted to the session store before it is committed in memory,
// so the in-memory run is a cache of the session store. Remote failures are returned to the caller, wrapped in
// ErrSubmission or ErrFetch, and never retried here.
package orchestrator

import (
	"context"
	"net/mail"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/pkg/measure"
	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

// JobIDPipe is the synthetic inline pipe holding the id of the last job submitted for a widget.
const JobIDPipe = "jobId"

// AllowedFileExtensions are the structure formats accepted by SubmitFile.
var AllowedFileExtensions = []string{"pdb", "xyz", "sdf", "mol2"}

// Orchestrator runs one app session. It is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	graph    *workflow.Graph
	sessions SessionStore
	compute  ComputeService
	fetcher  ArtifactFetcher
	logger   zerolog.Logger
	measure  measure.Measure

	// writeMu serializes the changes to the pipe data, from build to commit.
	writeMu sync.Mutex
	mu      sync.RWMutex
	run     workflow.Run
}

// New returns an orchestrator for the app described by g.
func New(cfg Config, g *workflow.Graph, sessions SessionStore, compute ComputeService, fetcher ArtifactFetcher,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		graph:    g,
		sessions: sessions,
		compute:  compute,
		fetcher:  fetcher,
		logger:   zerolog.Nop(),
		run:      workflow.Run{Status: workflow.StatusIdle, Steps: map[string]workflow.Status{}},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *Orchestrator) observe(op string, start time.Time, err error) {
	measure.Observe(o.measure, op, start, err)
}

// Graph returns the widget graph of the app.
func (o *Orchestrator) Graph() *workflow.Graph {
	return o.graph
}

// Run returns a copy of the current run.
func (o *Orchestrator) Run() workflow.Run {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.run.Clone()
}

// App returns the app with a copy of the current run.
func (o *Orchestrator) App() workflow.App {
	app := o.graph.NewApp()
	app.Run = o.Run()

	return app
}

// Status returns the status of the run.
func (o *Orchestrator) Status() workflow.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.run.Status
}

// ActiveIndex returns the step the user should be looking at, recomputed from the current pipe data.
func (o *Orchestrator) ActiveIndex() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return workflow.GetActiveIndex(o.graph.Widgets(), o.run.PipeDatasByWidget)
}

// PipeDatas returns the pipe data bound to pipes, in declaration order.
func (o *Orchestrator) PipeDatas(pipes []workflow.Pipe) []workflow.PipeData {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return workflow.GetPipeDatas(pipes, o.run.PipeDatasByWidget)
}

// ValidateEmail checks email is a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return errors.Wrapf(workflow.ErrValidation, "%q is not a valid email address", email)
	}

	return nil
}

// Start creates a session for the app and stores email in it. The run enters idle with the session id.
func (o *Orchestrator) Start(ctx context.Context, email string) (string, error) {
	if err := ValidateEmail(email); err != nil {
		return "", err
	}

	start := time.Now()
	id, err := o.sessions.Start(ctx, o.graph.AppID(), email)
	o.observe(measure.OpSessionStart, start, err)
	if err != nil {
		return "", submissionError("start session", err)
	}

	o.writeMu.Lock()
	o.mu.Lock()
	o.run = workflow.Run{ID: id, Email: email, Status: workflow.StatusIdle, Steps: map[string]workflow.Status{}}
	o.mu.Unlock()
	o.writeMu.Unlock()

	o.logger.Info().Str("run_id", id).Str("app_id", o.graph.AppID()).Msg("session started")

	if _, err := o.Ingest(ctx, []workflow.PipeData{workflow.NewInline(workflow.EnterEmailWidgetID, workflow.EmailPipe, email)}); err != nil {
		return id, err
	}

	return id, nil
}

// Load replaces the run by the session runID as found in the session store, then fetches its url content.
func (o *Orchestrator) Load(ctx context.Context, runID string) (IngestResult, error) {
	snap, err := o.getSnapshot(ctx, runID)
	if err != nil {
		return IngestResult{}, err
	}

	pds := snap.PipeDatas(o.graph.Widgets())
	p := workflow.Unflatten(pds)

	email := snap.Email
	if pd, ok := workflow.Get(p, workflow.Pipe{Name: workflow.EmailPipe, SourceWidgetID: workflow.EnterEmailWidgetID}); ok && email == "" {
		email = pd.Value
	}

	o.writeMu.Lock()
	o.mu.Lock()
	o.run = workflow.Run{ID: runID, Email: email, PipeDatasByWidget: p, Steps: snap.Statuses()}
	o.recomputeStatus()
	o.mu.Unlock()
	o.writeMu.Unlock()

	o.logger.Info().Str("run_id", runID).Int("pipe_datas", len(pds)).Msg("session loaded")

	return o.fetchAll(ctx, pds)
}

func (o *Orchestrator) getSnapshot(ctx context.Context, runID string) (wire.Snapshot, error) {
	start := time.Now()
	snap, err := o.sessions.Get(ctx, runID)
	o.observe(measure.OpSessionGet, start, err)
	if err != nil {
		return wire.Snapshot{}, fetchError("get session", err)
	}

	return snap, nil
}

// recomputeStatus must be called with mu held. A canceled run stays canceled.
func (o *Orchestrator) recomputeStatus() {
	if o.run.Status == workflow.StatusCanceled {
		return
	}

	o.run.Status = workflow.GetWorkflowStatus(o.run.StepStatuses(o.graph.Widgets()))
}

func (o *Orchestrator) runID() (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.run.ID == "" {
		return "", ErrNoSession
	}

	return o.run.ID, nil
}

// update builds the next pipe data map with fn, upserts it and commits it once the session store accepted it.
// On failure the run is left unchanged.
func (o *Orchestrator) update(ctx context.Context, fn func(workflow.PipeDatasByWidget) workflow.PipeDatasByWidget) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	o.mu.RLock()
	runID, current := o.run.ID, o.run.PipeDatasByWidget
	o.mu.RUnlock()

	if runID == "" {
		return ErrNoSession
	}

	next := fn(current)

	start := time.Now()
	err := o.sessions.Upsert(ctx, runID, wire.FromPipeDatas(next))
	o.observe(measure.OpSessionUpsert, start, err)
	if err != nil {
		return submissionError("upsert session", err)
	}

	o.mu.Lock()
	o.run.PipeDatasByWidget = next
	o.mu.Unlock()

	return nil
}

// updateLocal commits a change that does not need to be persisted, such as fetched content.
func (o *Orchestrator) updateLocal(fn func(workflow.PipeDatasByWidget) workflow.PipeDatasByWidget) {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	o.mu.Lock()
	o.run.PipeDatasByWidget = fn(o.run.PipeDatasByWidget)
	o.mu.Unlock()
}

// SetInput stores pipe data provided by the user on the widget declaring it.
func (o *Orchestrator) SetInput(ctx context.Context, pd workflow.PipeData) (IngestResult, error) {
	w, ok := o.graph.Widget(pd.WidgetID)
	if !ok {
		return IngestResult{}, errors.Wrapf(workflow.ErrValidation, "unknown widget %s", pd.WidgetID)
	}

	isUserInput := w.HasInput(pd.Pipe()) || (w.ID == workflow.EnterEmailWidgetID && pd.PipeName == workflow.EmailPipe)
	if !isUserInput {
		return IngestResult{}, errors.Wrapf(workflow.ErrValidation, "%s is not an input provided on widget %s", pd.PipeName, w.ID)
	}

	if _, ok := workflow.ParseKind(string(pd.Type)); !ok {
		return IngestResult{}, errors.Wrapf(workflow.ErrValidation, "unknown pipe data type %q", pd.Type)
	}

	return o.Ingest(ctx, []workflow.PipeData{pd})
}

// SubmitEmail validates email and stores it as the output of the enter email widget.
func (o *Orchestrator) SubmitEmail(ctx context.Context, email string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}

	if _, err := o.SetInput(ctx, workflow.NewInline(workflow.EnterEmailWidgetID, workflow.EmailPipe, email)); err != nil {
		return err
	}

	o.mu.Lock()
	o.run.Email = email
	o.mu.Unlock()

	return nil
}

// SubmitFile stores the content of a structure file as inline pipe data for pipe. The file extension must be
// one of AllowedFileExtensions.
func (o *Orchestrator) SubmitFile(ctx context.Context, pipe workflow.Pipe, filename string, content []byte) (IngestResult, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	allowed := false
	for _, a := range AllowedFileExtensions {
		if ext == a {
			allowed = true

			break
		}
	}
	if !allowed {
		return IngestResult{}, errors.Wrapf(workflow.ErrValidation, "%s: extension must be one of %s",
			filename, strings.Join(AllowedFileExtensions, ", "))
	}

	return o.SetInput(ctx, workflow.NewInline(pipe.SourceWidgetID, pipe.Name, string(content)))
}

// SelectLigand marks name as the selected ligand of the run and persists the choice.
func (o *Orchestrator) SelectLigand(ctx context.Context, name string) error {
	o.mu.RLock()
	names := workflow.GetLigandNames(workflow.Flatten(o.run.PipeDatasByWidget))
	o.mu.RUnlock()

	found := false
	for _, n := range names {
		if n == name {
			found = true

			break
		}
	}
	if !found {
		return errors.Wrapf(workflow.ErrValidation, "unknown ligand %s", name)
	}

	return o.update(ctx, func(p workflow.PipeDatasByWidget) workflow.PipeDatasByWidget {
		return workflow.SetAll(p, workflow.SelectLigand(workflow.Flatten(p), name))
	})
}

// SubmitWidget submits the job of widgetID with the pipe data currently bound to its inputs.
func (o *Orchestrator) SubmitWidget(ctx context.Context, widgetID string) (string, error) {
	w, ok := o.graph.Widget(widgetID)
	if !ok {
		return "", errors.Wrapf(workflow.ErrValidation, "unknown widget %s", widgetID)
	}

	return o.SubmitJob(ctx, widgetID, o.PipeDatas(w.InputPipes))
}

// SubmitJob dispatches the job of widgetID with inputs, the resolved pipe data of its declared inputs.
//
// It fails with a workflow.IncompleteInputError when a declared input has no pipe data. On success the job id
// is stored as inline pipe data of the widget and the step is running, or completed when the compute service
// answered with the outputs. A failed dispatch returns ErrSubmission and leaves the run status unchanged. So
// does a failed upsert of the job id, which also returns the id of the dispatched job.
func (o *Orchestrator) SubmitJob(ctx context.Context, widgetID string, inputs []workflow.PipeData) (string, error) {
	w, ok := o.graph.Widget(widgetID)
	if !ok {
		return "", errors.Wrapf(workflow.ErrValidation, "unknown widget %s", widgetID)
	}

	resolved := workflow.Unflatten(inputs)
	if missing := workflow.MissingPipes(w.InputPipes, resolved); len(missing) > 0 {
		return "", &workflow.IncompleteInputError{WidgetID: w.ID, Missing: missing}
	}

	runID, err := o.runID()
	if err != nil {
		return "", err
	}

	logger := o.logger.With().Str("run_id", runID).Str("widget_id", w.ID).Logger()

	req := wire.JobRequest{Config: w.Config, Inputs: wire.Named(workflow.GetPipeDatas(w.InputPipes, resolved))}

	start := time.Now()
	resp, err := o.compute.Submit(ctx, runID, w.ID, req)
	o.observe(measure.OpComputeSubmit, start, err)
	if err != nil {
		logger.Error().Err(err).Msg("job submission failed")

		return "", submissionError("submit job", err)
	}

	outputs := wire.Bind(w.ID, resp.Outputs)
	step := workflow.StatusRunning
	if len(outputs) > 0 {
		step = workflow.StatusCompleted
	}

	pds := append([]workflow.PipeData{workflow.NewInline(w.ID, JobIDPipe, resp.JobID)}, outputs...)
	err = o.update(ctx, func(p workflow.PipeDatasByWidget) workflow.PipeDatasByWidget {
		return workflow.SetAll(p, pds)
	})
	if err != nil {
		logger.Error().Err(err).Str("job_id", resp.JobID).Msg("unable to store job id")

		return resp.JobID, err
	}

	o.mu.Lock()
	o.run.Steps[w.ID] = step
	o.recomputeStatus()
	o.mu.Unlock()

	logger.Info().Str("job_id", resp.JobID).Int("outputs", len(outputs)).Msg("job submitted")

	if _, err := o.fetchAll(ctx, pds); err != nil {
		return resp.JobID, err
	}

	return resp.JobID, nil
}

// Cancel asks the compute service to cancel the run. The run is canceled once the service acknowledged;
// on failure it keeps its status and the error is returned.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	runID, err := o.runID()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.run.Canceling = true
	o.mu.Unlock()

	start := time.Now()
	err = o.compute.Cancel(ctx, runID)
	o.observe(measure.OpComputeCancel, start, err)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.run.Canceling = false
	if err != nil {
		o.logger.Error().Err(err).Str("run_id", runID).Msg("cancellation failed")

		return submissionError("cancel run", err)
	}

	o.run.Status = workflow.StatusCanceled
	o.logger.Info().Str("run_id", runID).Msg("run canceled")

	return nil
}
