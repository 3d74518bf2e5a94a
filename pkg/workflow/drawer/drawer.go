// Package drawer renders a widget graph in the DOT language.
//
// Nodes are coloured by the state of the run: steps before the active one are satisfied, the active step is
// highlighted. A later step is blocked while one of the widgets it consumes from is unsatisfied, otherwise it
// only waits for its own inputs. A step status reported by the run (running, error, ...) is written
// as the node xlabel and overrides the readiness colour for terminal failures.
package drawer

import (
	"fmt"
	"io"
	"text/template"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/molsim/internal/store"
	"github.com/askiada/molsim/pkg/workflow"
)

// Readiness of a widget relative to the active step.
type Readiness int

const (
	Satisfied Readiness = iota
	Active
	Waiting
	Blocked
)

// Palette maps a node state to an RGB colour.
type Palette struct {
	Satisfied [3]uint8
	Active    [3]uint8
	Waiting   [3]uint8
	Blocked   [3]uint8
	Failed    [3]uint8
}

// DefaultPalette is used unless WithPalette is given.
var DefaultPalette = Palette{
	Satisfied: [3]uint8{46, 160, 67},
	Active:    [3]uint8{240, 140, 0},
	Waiting:   [3]uint8{60, 120, 220},
	Blocked:   [3]uint8{160, 160, 160},
	Failed:    [3]uint8{220, 20, 20},
}

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
	palette      Palette
}

type statement struct {
	Source           string
	Target           string
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
}

// Option configures the DOT output.
type Option func(*description)

// GraphAttribute sets a graph level attribute, such as rankdir.
func GraphAttribute(key, value string) Option {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

// WithPalette replaces the node colours.
func WithPalette(p Palette) Option {
	return func(d *description) {
		d.palette = p
	}
}

// ReadinessOf returns the readiness of every widget of g for the pipe data p.
func ReadinessOf(g *workflow.Graph, p workflow.PipeDatasByWidget) (map[string]Readiness, error) {
	widgets := g.Widgets()
	active := workflow.GetActiveIndex(widgets, p)
	res := make(map[string]Readiness, len(widgets))
	for i, w := range widgets {
		switch {
		case i < active:
			res[w.ID] = Satisfied
		case i == active && workflow.Satisfied(w, p):
			// Every widget is satisfied, the last one is active and done.
			res[w.ID] = Satisfied
		case i == active:
			res[w.ID] = Active
		default:
			upstream, err := g.Upstream(w.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to get upstream widgets of %s", w.ID)
			}

			res[w.ID] = Waiting
			for _, up := range upstream {
				if !workflow.Satisfied(up, p) {
					res[w.ID] = Blocked

					break
				}
			}
		}
	}

	return res, nil
}

// DOT writes the widget graph of g for run to wrt.
func DOT(wrt io.Writer, g *workflow.Graph, run workflow.Run, options ...Option) error {
	desc := description{
		GraphType:    "digraph",
		Attributes:   make(map[string]string),
		EdgeOperator: "->",
		Statements:   make([]statement, 0),
		palette:      DefaultPalette,
	}

	for _, option := range options {
		option(&desc)
	}

	gra, st, err := buildGraph(g, run, desc.palette)
	if err != nil {
		return err
	}

	if err := fillStatements(&desc, gra, st); err != nil {
		return err
	}

	return renderDOT(wrt, desc)
}

func hexColor(rgb [3]uint8) (string, error) {
	c, err := colors.RGB(rgb[0], rgb[1], rgb[2]) //nolint
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}

	return c.ToHEX().String(), nil
}

func buildGraph(
	g *workflow.Graph, run workflow.Run, palette Palette,
) (graph.Graph[string, string], *store.OrderedStore[string, string], error) {
	st := store.NewOrderedStore[string, string]()
	gra := graph.NewWithStore(graph.StringHash, st, graph.Directed())
	readiness, err := ReadinessOf(g, run.PipeDatasByWidget)
	if err != nil {
		return nil, nil, err
	}

	for _, w := range g.Widgets() {
		rgb := palette.Blocked
		switch readiness[w.ID] {
		case Satisfied:
			rgb = palette.Satisfied
		case Active:
			rgb = palette.Active
		case Waiting:
			rgb = palette.Waiting
		}

		status, hasStatus := run.Steps[w.ID]
		if status == workflow.StatusError || status == workflow.StatusCanceled {
			rgb = palette.Failed
		}

		color, err := hexColor(rgb)
		if err != nil {
			return nil, nil, err
		}

		attrs := []func(*graph.VertexProperties){
			graph.VertexAttribute("color", color),
			graph.VertexAttribute("shape", "box"),
		}
		if hasStatus {
			attrs = append(attrs, graph.VertexAttribute("xlabel", string(status)))
		}

		if err := gra.AddVertex(w.ID, attrs...); err != nil {
			return nil, nil, errors.Wrapf(err, "unable to add vertex %s", w.ID)
		}
	}

	edges, err := g.DAG().Edges()
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to list edges")
	}

	for _, edge := range edges {
		err := gra.AddEdge(edge.Source, edge.Target,
			graph.EdgeAttribute("label", edge.Properties.Attributes[workflow.EdgeLabel]),
			graph.EdgeAttribute("fontcolor", "blue"),
		)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "unable to add edge from %s to %s", edge.Source, edge.Target)
		}
	}

	return gra, st, nil
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
{{- range $k, $v := .Attributes}}
	{{$k}}="{{$v}}";
{{- end}}
{{- range $s := .Statements}}
	"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}}]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}}{{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}}]{{end}};
{{- end}}
}
`

func fillStatements(desc *description, gra graph.Graph[string, string], st *store.OrderedStore[string, string]) error {
	vertices, err := st.ListVertices()
	if err != nil {
		return errors.Wrap(err, "unable to list vertices")
	}

	edges, err := st.ListEdges()
	if err != nil {
		return errors.Wrap(err, "unable to list edges")
	}

	for _, vertex := range vertices {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}

		attributes := make(map[string]string, len(sourceProperties.Attributes))
		htmlAttributes := make(map[string]string)
		for k, v := range sourceProperties.Attributes {
			if k == "xlabel" {
				htmlAttributes["label"] = fmt.Sprintf(`<%s <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, vertex, v)

				continue
			}
			attributes[k] = v
		}

		desc.Statements = append(desc.Statements, statement{
			Source:           vertex,
			SourceAttributes: attributes,
			HTMLAttributes:   htmlAttributes,
		})

		for _, edge := range edges {
			if edge.Source != vertex {
				continue
			}
			desc.Statements = append(desc.Statements, statement{
				Source:         edge.Source,
				Target:         edge.Target,
				EdgeAttributes: edge.Properties.Attributes,
			})
		}
	}

	return nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}
