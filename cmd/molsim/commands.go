package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/internal/config"
	"github.com/askiada/molsim/internal/logger"
	"github.com/askiada/molsim/pkg/measure"
	"github.com/askiada/molsim/pkg/orchestrator"
	"github.com/askiada/molsim/pkg/orchestrator/httpapi"
	"github.com/askiada/molsim/pkg/orchestrator/notify"
	"github.com/askiada/molsim/pkg/workflow"
	"github.com/askiada/molsim/pkg/workflow/drawer"
)

// common holds the flags shared by every command.
type common struct {
	configFile string
	envFile    string
	appFile    string
	apiURL     string
	noPush     bool
}

func newFlagSet(name string, out io.Writer, c *common) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&c.configFile, "config", "", "YAML config file.")
	fs.StringVar(&c.envFile, "env-file", ".env", "dotenv file, skipped when missing.")
	fs.StringVar(&c.appFile, "app", "", "App definition file, JSON or YAML. Required.")
	fs.StringVar(&c.apiURL, "api", "", "API url, overrides api.url.")
	fs.BoolVar(&c.noPush, "no-push", false, "Follow runs by polling only.")

	return fs
}

// parse parses args and reports whether the command should go on. It does not after -h.
func parse(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}

		return false, &ExitError{Code: 2, Message: err.Error()}
	}

	return true, nil
}

// env is what every command needs once its flags are parsed.
type env struct {
	cfg    config.Config
	logger zerolog.Logger
	graph  *workflow.Graph
}

func (c common) load(logOut io.Writer) (env, error) {
	if c.appFile == "" {
		return env{}, &ExitError{Code: 2, Message: "-app is required"}
	}

	cfg, err := config.Load(config.Options{File: c.configFile, EnvFile: c.envFile})
	if err != nil {
		return env{}, errors.Wrap(err, "unable to load config")
	}
	if c.apiURL != "" {
		cfg.API.URL = c.apiURL
	}
	if c.noPush {
		cfg.Push.Enabled = false
	}

	l, err := logger.New(cfg.Log, logOut)
	if err != nil {
		return env{}, err
	}

	def, err := workflow.LoadAppDefinition(c.appFile)
	if err != nil {
		return env{}, err
	}

	g, err := workflow.NewGraph(def)
	if err != nil {
		return env{}, err
	}

	return env{cfg: cfg, logger: l, graph: g}, nil
}

func (e env) orchestrator(m measure.Measure) (*orchestrator.Orchestrator, error) {
	client, err := httpapi.New(httpapi.Config{BaseURL: e.cfg.API.URL, Timeout: e.cfg.API.Timeout},
		httpapi.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{FetchConcurrency: e.cfg.Orchestrator.FetchConcurrency},
		e.graph, client, client, client,
		orchestrator.WithLogger(e.logger), orchestrator.WithMeasure(m)), nil
}

func (e env) notifier() orchestrator.Notifier {
	poller := notify.NewPoller(e.cfg.Orchestrator.PollInterval)
	if !e.cfg.Push.Enabled || e.cfg.Push.URL == "" {
		return poller
	}

	return notify.NewFallback(notify.NewWebSocket(e.cfg.Push.URL, e.logger), poller)
}

func graphCommand(ctx context.Context, out, logOut io.Writer, args []string) error {
	var c common
	fs := newFlagSet("graph", out, &c)
	runID := fs.String("run", "", "Colour the widgets by the readiness of this session.")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	e, err := c.load(logOut)
	if err != nil {
		return err
	}

	run := workflow.Run{}
	if *runID != "" {
		o, err := e.orchestrator(nil)
		if err != nil {
			return err
		}
		if _, err := o.Load(ctx, *runID); err != nil {
			return err
		}
		run = o.Run()
	}

	return drawer.DOT(out, e.graph, run)
}

func runCommand(ctx context.Context, out, logOut io.Writer, args []string) error {
	var c common
	fs := newFlagSet("run", out, &c)
	email := fs.String("email", "", "Contact email of the session. Required.")
	input := fs.String("input", "", "Structure file to submit: pdb, xyz, sdf or mol2. Required.")
	widgetID := fs.String("widget", "", "Widget to submit. Defaults to the first widget taking a user input.")
	watch := fs.Bool("watch", false, "Follow the session until it ends.")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	if *email == "" || *input == "" {
		return &ExitError{Code: 2, Message: "-email and -input are required"}
	}

	e, err := c.load(logOut)
	if err != nil {
		return err
	}

	w, pipe, err := inputWidget(e.graph, *widgetID)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(*input)
	if err != nil {
		return errors.Wrapf(err, "unable to read %s", *input)
	}

	m := measure.NewDefaultMeasure()
	o, err := e.orchestrator(m)
	if err != nil {
		return err
	}

	id, err := o.Start(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s\n", id)

	if _, err := o.SubmitFile(ctx, pipe, filepath.Base(*input), content); err != nil {
		return err
	}

	jobID, err := o.SubmitWidget(ctx, w.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "job %s submitted for %s\n", jobID, w.ID)

	next, err := e.graph.Dependents(w.ID)
	if err != nil {
		return err
	}
	if len(next) > 0 {
		ids := make([]string, 0, len(next))
		for _, d := range next {
			ids = append(ids, d.ID)
		}
		fmt.Fprintf(out, "feeds %s\n", strings.Join(ids, ", "))
	}

	if *watch {
		if err := follow(ctx, out, o, e.notifier()); err != nil {
			return err
		}
	}

	printSummary(out, o, m)

	return nil
}

// inputWidget returns the widget to submit and its user input pipe.
func inputWidget(g *workflow.Graph, id string) (workflow.Widget, workflow.Pipe, error) {
	for _, w := range g.Widgets() {
		if id != "" && w.ID != id {
			continue
		}
		if inputs := w.UserInputs(); len(inputs) > 0 {
			return w, inputs[0], nil
		}
		if id != "" {
			return workflow.Widget{}, workflow.Pipe{}, &ExitError{Code: 2, Message: fmt.Sprintf("widget %s takes no user input", id)}
		}
	}

	if id != "" {
		return workflow.Widget{}, workflow.Pipe{}, &ExitError{Code: 2, Message: fmt.Sprintf("unknown widget %s", id)}
	}

	return workflow.Widget{}, workflow.Pipe{}, &ExitError{Code: 2, Message: "no widget takes a user input"}
}

func watchCommand(ctx context.Context, out, logOut io.Writer, args []string) error {
	var c common
	fs := newFlagSet("watch", out, &c)
	runID := fs.String("run", "", "Session to follow. Required.")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	if *runID == "" {
		return &ExitError{Code: 2, Message: "-run is required"}
	}

	e, err := c.load(logOut)
	if err != nil {
		return err
	}

	m := measure.NewDefaultMeasure()
	o, err := e.orchestrator(m)
	if err != nil {
		return err
	}

	if _, err := o.Load(ctx, *runID); err != nil {
		return err
	}

	if err := follow(ctx, out, o, e.notifier()); err != nil {
		return err
	}

	printSummary(out, o, m)

	return nil
}

var errRunEnded = errors.New("run ended")

// follow prints every status change until the run ends.
func follow(ctx context.Context, out io.Writer, o *orchestrator.Orchestrator, n orchestrator.Notifier) error {
	last := o.Status()
	fmt.Fprintf(out, "status %s\n", last)
	if last.Terminal() {
		return nil
	}

	err := o.Watch(ctx, n, func(res orchestrator.IngestResult, err error) error {
		if err != nil {
			fmt.Fprintf(out, "refresh failed: %v\n", err)

			return nil
		}
		for pipe, ferr := range res.Failures {
			fmt.Fprintf(out, "unable to fetch %s: %v\n", pipe, ferr)
		}

		if status := o.Status(); status != last {
			last = status
			fmt.Fprintf(out, "status %s\n", status)
		}
		if last.Terminal() {
			return errRunEnded
		}

		return nil
	})
	if errors.Is(err, errRunEnded) {
		return nil
	}

	return err
}

func printSummary(out io.Writer, o *orchestrator.Orchestrator, m *measure.DefaultMeasure) {
	widgets := o.Graph().Widgets()
	active := o.ActiveIndex()
	if active < len(widgets) {
		fmt.Fprintf(out, "active step %s\n", widgets[active].ID)
	}
	fmt.Fprintf(out, "status %s\n", o.Status())

	for _, name := range measure.Names(m) {
		mt := m.GetMetric(name)
		fmt.Fprintf(out, "%-16s calls=%d failures=%d avg=%s\n", name, mt.Total(), mt.Failures(), mt.AVGDuration())
	}
}
