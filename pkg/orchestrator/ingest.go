package orchestrator

import (
	"context"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/molsim/pkg/measure"
	"github.com/askiada/molsim/pkg/workflow"
)

// IngestResult tells which url pipe data were fetched by an ingestion. A failed download is recorded on the
// pipe data and here, it never fails the ingestion.
type IngestResult struct {
	Fetched  []workflow.Pipe
	Failures map[workflow.Pipe]error
}

// OK reports whether every download succeeded.
func (r IngestResult) OK() bool {
	return len(r.Failures) == 0
}

// Ingest merges pds into the run and persists them, then fetches the content of the url ones.
//
// Ingestion applies to a canceled run too: status and data are independent.
func (o *Orchestrator) Ingest(ctx context.Context, pds []workflow.PipeData) (IngestResult, error) {
	err := o.update(ctx, func(p workflow.PipeDatasByWidget) workflow.PipeDatasByWidget {
		return workflow.SetAll(p, pds)
	})
	if err != nil {
		return IngestResult{}, err
	}

	return o.fetchAll(ctx, pds)
}

type fetched struct {
	pd  workflow.PipeData
	err error
}

// fetchAll downloads the pending url pipe data of pds concurrently and commits each result if the pipe still
// holds the same value. It finally selects and persists the ligand when there is a single candidate.
//
// Download failures are reported in the result. The error is the failure to persist the selection.
func (o *Orchestrator) fetchAll(ctx context.Context, pds []workflow.PipeData) (IngestResult, error) {
	var pending []workflow.PipeData
	for _, pd := range pds {
		if pd.Type == workflow.KindURL && pd.Pending() {
			pending = append(pending, pd)
		}
	}

	res := IngestResult{Failures: map[workflow.Pipe]error{}}

	results := make([]fetched, len(pending))
	if len(pending) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.fetchConcurrency())

		for i, pd := range pending {
			i, pd := i, pd
			g.Go(func() error {
				content, err := o.fetch(gctx, pd)
				if err != nil {
					results[i] = fetched{pd: pd.WithFetchError(err), err: err}

					return nil
				}
				results[i] = fetched{pd: pd.WithFetched(content)}

				return nil
			})
		}

		_ = g.Wait()
	}

	o.updateLocal(func(p workflow.PipeDatasByWidget) workflow.PipeDatasByWidget {
		for _, r := range results {
			current, ok := workflow.Get(p, r.pd.Pipe())
			if !ok || !current.SameValue(r.pd) {
				// Superseded by a later write.
				continue
			}

			r.pd.SelectedLigand = current.SelectedLigand
			p = workflow.Set(p, r.pd)
			if r.err != nil {
				res.Failures[r.pd.Pipe()] = r.err
			} else {
				res.Fetched = append(res.Fetched, r.pd.Pipe())
			}
		}

		return p
	})

	for pipe, err := range res.Failures {
		o.logger.Warn().Err(err).Str("pipe", pipe.String()).Msg("unable to fetch pipe data")
	}

	if err := o.autoSelectLigand(ctx); err != nil {
		return res, err
	}

	return res, nil
}

// autoSelectLigand persists the selection of the only candidate ligand when none is selected yet.
func (o *Orchestrator) autoSelectLigand(ctx context.Context) error {
	o.mu.RLock()
	flat := workflow.Flatten(o.run.PipeDatasByWidget)
	o.mu.RUnlock()

	if _, selected := workflow.SelectedLigand(flat); selected || len(workflow.GetLigandNames(flat)) != 1 {
		return nil
	}

	return o.update(ctx, func(p workflow.PipeDatasByWidget) workflow.PipeDatasByWidget {
		flat := workflow.Flatten(p)
		if _, selected := workflow.SelectedLigand(flat); selected {
			return p
		}

		return workflow.SetAll(p, workflow.AutoSelectLigand(flat))
	})
}

func (o *Orchestrator) fetch(ctx context.Context, pd workflow.PipeData) (workflow.Content, error) {
	start := time.Now()
	data, err := o.fetcher.Fetch(ctx, pd.Value)
	o.observe(measure.OpArtifactFetch, start, err)
	if err != nil {
		return workflow.Content{}, fetchError("fetch "+pd.Pipe().String(), err)
	}

	content, err := workflow.DecodeContent(contentName(pd), data)
	if err != nil {
		return workflow.Content{}, fetchError("decode "+pd.Pipe().String(), err)
	}

	return content, nil
}

// contentName is the name used to pick the format of fetched content: the url path when it has an
// extension, the pipe name otherwise.
func contentName(pd workflow.PipeData) string {
	u, err := url.Parse(pd.Value)
	if err == nil && path.Ext(u.Path) != "" {
		return u.Path
	}

	return pd.PipeName
}

// Refresh reconciles the run with the session store. New or changed pipe data are ingested without being
// persisted again, and the step statuses reported by the store are applied. A pipe data whose value is
// unchanged keeps its fetched content, only its ligand selection follows the store.
func (o *Orchestrator) Refresh(ctx context.Context) (IngestResult, error) {
	runID, err := o.runID()
	if err != nil {
		return IngestResult{}, err
	}

	snap, err := o.getSnapshot(ctx, runID)
	if err != nil {
		return IngestResult{}, err
	}

	var changed, reselected []workflow.PipeData
	o.updateLocal(func(p workflow.PipeDatasByWidget) workflow.PipeDatasByWidget {
		for _, pd := range snap.PipeDatas(o.graph.Widgets()) {
			current, ok := workflow.Get(p, pd.Pipe())
			switch {
			case ok && current.SameValue(pd) && current.SelectedLigand == pd.SelectedLigand:
			case ok && current.SameValue(pd):
				reselected = append(reselected, current.WithSelectedLigand(pd.SelectedLigand))
			default:
				changed = append(changed, pd)
			}
		}

		return workflow.SetAll(workflow.SetAll(p, reselected), changed)
	})

	o.mu.Lock()
	for id, status := range snap.Statuses() {
		o.run.Steps[id] = status
	}
	o.recomputeStatus()
	o.mu.Unlock()

	o.logger.Debug().Str("run_id", runID).Int("changed", len(changed)).Int("reselected", len(reselected)).
		Msg("session refreshed")

	return o.fetchAll(ctx, changed)
}

// Watch refreshes the run on every notification of n until ctx is done or the notifications stop.
//
// handle is called after every refresh. Watch stops and returns the error handle returns. A nil handle stops
// on the first refresh error.
func (o *Orchestrator) Watch(ctx context.Context, n Notifier, handle func(IngestResult, error) error) error {
	runID, err := o.runID()
	if err != nil {
		return err
	}

	if handle == nil {
		handle = func(_ IngestResult, err error) error { return err }
	}

	ch, err := n.Subscribe(ctx, runID)
	if err != nil {
		return fetchError("subscribe", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}

			if err := handle(o.Refresh(ctx)); err != nil {
				return errors.Wrap(err, "watch stopped")
			}
		}
	}
}
