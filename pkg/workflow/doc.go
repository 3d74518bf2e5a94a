// Package workflow provides the dataflow model behind a molecular simulation app.
//
// An app is an ordered list of widgets (load input, run job, inspect results). Each widget consumes and
// produces named data slots called pipes. The value currently bound to a pipe is a PipeData: either inline
// content or a url whose content is fetched lazily.
//
// The package is made of pure functions over a Run's pipe data. Flatten, Unflatten, Set and Get move between
// the per-widget grouping and a single global list, GetActiveIndex decides which step the user should be
// looking at, GetWorkflowStatus folds step statuses into one run status, and the ligand helpers let the user
// disambiguate a structure exposing several candidate ligands. None of them keep state of their own, so there
// is no cache to invalidate: every derived view is recomputed from the pipe data it is given.
//
// The widget graph is built once per app from a declarative definition. It is a DAG ordered by declaration
// position and backed by github.com/dominikbraun/graph. Construction is the only place malformed input is
// reported, through ErrConfig.
package workflow
