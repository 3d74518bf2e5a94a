package workflow

import (
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/molsim/internal/store"
)

// EdgeLabel is the edge attribute listing the pipes flowing between two widgets.
const EdgeLabel = "label"

// Graph is the static widget graph of an app. It is read only once built and safe for concurrent use.
type Graph struct {
	appID         string
	title         string
	selectLigands bool
	widgets       []Widget
	// positions keeps the widgets in declaration order, in step with widgets.
	positions *store.OrderedStore[string, Widget]
	dag       graph.Graph[string, Widget]
}

func widgetHash(w Widget) string {
	return w.ID
}

// NewGraph builds the widget graph of def.
//
// The enter email widget is prepended and every other widget gets an email input. A widget can only consume
// outputs of widgets declared before it, so the graph is a DAG ordered by declaration position.
func NewGraph(def AppDefinition) (*Graph, error) {
	if def.ComingSoon {
		return nil, configErrorf("app %s is not available yet", def.ID)
	}

	positions := store.NewOrderedStore[string, Widget]()
	g := &Graph{
		appID:         def.ID,
		title:         def.Title,
		selectLigands: def.SelectLigands,
		positions:     positions,
		dag:           graph.NewWithStore(widgetHash, positions, graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
	}

	enterEmail := Widget{
		ID:          EnterEmailWidgetID,
		Title:       "Enter Email",
		OutputPipes: []Pipe{{Name: EmailPipe, SourceWidgetID: EnterEmailWidgetID}},
	}
	if err := g.addWidget(enterEmail); err != nil {
		return nil, err
	}

	for i, wd := range def.Widgets {
		w, err := g.buildWidget(i, wd)
		if err != nil {
			return nil, err
		}
		if err := g.addWidget(w); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// BuildGraph returns the widgets of def in step order.
func BuildGraph(def AppDefinition) ([]Widget, error) {
	g, err := NewGraph(def)
	if err != nil {
		return nil, err
	}

	return g.Widgets(), nil
}

func (g *Graph) buildWidget(pos int, wd WidgetDefinition) (Widget, error) {
	if wd.ID == "" {
		return Widget{}, configErrorf("widget at position %d has no id", pos)
	}
	if g.positions.Position(wd.ID) >= 0 {
		return Widget{}, configErrorf("duplicate widget id %s", wd.ID)
	}

	w := Widget{
		ID:     wd.ID,
		Title:  wd.Title,
		Type:   wd.Type,
		Config: wd.Config,
	}

	for _, out := range wd.Outputs {
		if out.ID == "" {
			return Widget{}, configErrorf("widget %s declares an output without id", wd.ID)
		}
		w.OutputPipes = append(w.OutputPipes, Pipe{Name: out.ID, SourceWidgetID: wd.ID})
	}

	for _, in := range wd.Inputs {
		if in.Name == "" {
			return Widget{}, configErrorf("widget %s declares an input without name", wd.ID)
		}

		if in.SourceWidgetID == "" || in.SourceWidgetID == wd.ID {
			w.InputPipes = append(w.InputPipes, Pipe{Name: in.Name, SourceWidgetID: wd.ID})

			continue
		}

		src, ok := g.Widget(in.SourceWidgetID)
		if !ok {
			return Widget{}, configErrorf("widget %s consumes %s from %s which is not an earlier widget",
				wd.ID, in.SourcePipe, in.SourceWidgetID)
		}

		pipe := Pipe{Name: in.SourcePipe, SourceWidgetID: src.ID}
		if !declares(src.OutputPipes, pipe) {
			return Widget{}, configErrorf("widget %s consumes %s which %s does not produce", wd.ID, in.SourcePipe, src.ID)
		}
		w.InputPipes = append(w.InputPipes, pipe)
	}

	w.InputPipes = append(w.InputPipes, Pipe{Name: EmailPipe, SourceWidgetID: EnterEmailWidgetID})

	return w, nil
}

func declares(pipes []Pipe, pipe Pipe) bool {
	for _, p := range pipes {
		if p == pipe {
			return true
		}
	}

	return false
}

func (g *Graph) addWidget(w Widget) error {
	if err := g.dag.AddVertex(w); err != nil {
		return errors.Wrapf(ErrConfig, "unable to add widget %s: %v", w.ID, err)
	}

	g.widgets = append(g.widgets, w)

	labels := make(map[string][]string)
	var sources []string
	for _, pipe := range w.InputPipes {
		if pipe.SourceWidgetID == w.ID {
			continue
		}
		if _, ok := labels[pipe.SourceWidgetID]; !ok {
			sources = append(sources, pipe.SourceWidgetID)
		}
		labels[pipe.SourceWidgetID] = append(labels[pipe.SourceWidgetID], pipe.Name)
	}

	for _, src := range sources {
		names := labels[src]
		sort.Strings(names)
		err := g.dag.AddEdge(src, w.ID, graph.EdgeAttribute(EdgeLabel, strings.Join(names, ",")))
		if err != nil {
			return errors.Wrapf(ErrConfig, "unable to connect %s to %s: %v", src, w.ID, err)
		}
	}

	return nil
}

// AppID returns the id of the app the graph was built from.
func (g *Graph) AppID() string { return g.appID }

// Title returns the app title.
func (g *Graph) Title() string { return g.title }

// SelectLigands reports whether the app asks the user to pick a ligand.
func (g *Graph) SelectLigands() bool { return g.selectLigands }

// Widgets returns a copy of the widgets in step order.
func (g *Graph) Widgets() []Widget {
	res := make([]Widget, len(g.widgets))
	copy(res, g.widgets)

	return res
}

// Len returns the number of widgets, the enter email widget included.
func (g *Graph) Len() int { return len(g.widgets) }

// Widget returns the widget with the given id.
func (g *Graph) Widget(id string) (Widget, bool) {
	i := g.positions.Position(id)
	if i < 0 {
		return Widget{}, false
	}

	return g.widgets[i], true
}

// Index returns the step position of the widget with the given id, or -1.
func (g *Graph) Index(id string) int {
	return g.positions.Position(id)
}

// Dependents returns the widgets directly consuming an output of id, in step order.
func (g *Graph) Dependents(id string) ([]Widget, error) {
	adj, err := g.dag.AdjacencyMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to get adjacency map")
	}

	return g.inOrder(adj[id]), nil
}

// Upstream returns the widgets id directly consumes from, in step order.
func (g *Graph) Upstream(id string) ([]Widget, error) {
	pred, err := g.dag.PredecessorMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to get predecessor map")
	}

	return g.inOrder(pred[id]), nil
}

func (g *Graph) inOrder(edges map[string]graph.Edge[string]) []Widget {
	res := make([]Widget, 0, len(edges))
	for _, w := range g.widgets {
		if _, ok := edges[w.ID]; ok {
			res = append(res, w)
		}
	}

	return res
}

// DAG returns the underlying graph. It must not be modified.
func (g *Graph) DAG() graph.Graph[string, Widget] {
	return g.dag
}

// NewApp returns an App for the graph with an empty run.
func (g *Graph) NewApp() App {
	return App{
		ID:            g.appID,
		Title:         g.title,
		SelectLigands: g.selectLigands,
		Widgets:       g.Widgets(),
		Run:           Run{Status: StatusIdle, Steps: map[string]Status{}},
	}
}
