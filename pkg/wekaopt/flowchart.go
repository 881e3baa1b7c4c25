package wekaopt

import (
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// FlowNode is one stage of a flowchart with the method chosen for it.
type FlowNode struct {
	id     int64
	Stage  models.Stage
	Method string
}

func (n FlowNode) ID() int64 { return n.id }

// DOTID names the node after its stage, unique within a flowchart.
func (n FlowNode) DOTID() string { return n.Stage.Key() }

// Label is the text of the node box, e.g. "predictor:\nJ48".
func (n FlowNode) Label() string {
	return n.Stage.Key() + ":\n" + ShortName(n.Method)
}

func (n FlowNode) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: strconv.Quote(n.Label())}}
}

type attributes []encoding.Attribute

func (a attributes) Attributes() []encoding.Attribute { return a }

// Flowchart is the directed graph of the stages a pipeline chains, from
// missing values handling to the predictor, followed by the meta method when
// one is used.
type Flowchart struct {
	*simple.DirectedGraph
}

// NewFlowchart chains the stages of p.
func NewFlowchart(p *Pipeline) Flowchart {
	stages := append([]models.Stage(nil), models.PreprocessingStages...)
	stages = append(stages, models.StagePredictor)
	if p.Uses(models.StageMeta) {
		stages = append(stages, models.StageMeta)
	}

	g := Flowchart{simple.NewDirectedGraph()}
	var prev graph.Node
	for i, s := range stages {
		n := FlowNode{id: int64(i), Stage: s, Method: p.column(s)}
		g.AddNode(n)
		if prev != nil {
			g.SetEdge(g.NewEdge(prev, n))
		}
		prev = n
	}
	return g
}

// Stages returns the nodes in flow order.
func (g Flowchart) Stages() []FlowNode {
	out := make([]FlowNode, 0, g.Nodes().Len())
	for id := int64(0); ; id++ {
		n := g.Node(id)
		if n == nil {
			return out
		}
		out = append(out, n.(FlowNode))
	}
}

// DOTAttributers lays the flowchart out in a circle of boxes.
func (g Flowchart) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return attributes{{Key: "layout", Value: "circo"}},
		attributes{{Key: "shape", Value: "box"}, {Key: "fontsize", Value: "10"}},
		attributes{}
}

// MarshalDOT renders the flowchart in the Graphviz DOT language.
func (g Flowchart) MarshalDOT() ([]byte, error) {
	return dot.Marshal(g, "flowchart", "", "\t")
}
