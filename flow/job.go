package flow

import (
	"fmt"
	"strings"
)

// Job is a validated operator graph ready to be planned by a Platform.
//
// NewJob walks the graph from its tails and fixes a topological order (inputs
// before consumers) that is stable for a given construction, so node indices
// can be used as identifiers in plans, logs, and order keys.
type Job struct {
	name  string
	tails []*Node
	nodes []*Node
	index map[*Node]int
	down  map[*Node][]*Node
}

// NewJob validates the graph reachable from tails.
//
// Returns an error if:
//   - no tail is given
//   - a tail or an input is a zero-value handle
//   - a non-source node has no inputs
func NewJob(name string, tails ...Tail) (*Job, error) {
	if len(tails) == 0 {
		return nil, &Error{Op: "job", Message: "at least one tail is required", Code: "INVALID_JOB"}
	}

	j := &Job{
		name:  name,
		index: make(map[*Node]int),
		down:  make(map[*Node][]*Node),
	}

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if _, seen := j.index[n]; seen {
			return nil
		}
		if n.kind != KindSource && len(n.inputs) == 0 {
			return &Error{Op: "job", Message: n.label + " has no inputs", Code: "INVALID_JOB"}
		}
		for _, in := range n.inputs {
			if in == nil {
				return &Error{Op: "job", Message: n.label + " has an unset input", Code: "INVALID_JOB"}
			}
			if err := visit(in); err != nil {
				return err
			}
		}
		j.index[n] = len(j.nodes)
		j.nodes = append(j.nodes, n)
		return nil
	}

	for i, t := range tails {
		if t == nil || t.Node() == nil {
			return nil, &Error{Op: "job", Message: fmt.Sprintf("tail %d is unset", i), Code: "INVALID_JOB"}
		}
		if err := visit(t.Node()); err != nil {
			return nil, err
		}
		j.tails = append(j.tails, t.Node())
	}

	for _, n := range j.nodes {
		for _, in := range n.inputs {
			j.down[in] = append(j.down[in], n)
		}
	}

	return j, nil
}

// Name returns the job name.
func (j *Job) Name() string { return j.name }

// Nodes returns every node in topological order.
func (j *Job) Nodes() []*Node {
	out := make([]*Node, len(j.nodes))
	copy(out, j.nodes)
	return out
}

// Tails returns the nodes the job was built from.
func (j *Job) Tails() []*Node {
	out := make([]*Node, len(j.tails))
	copy(out, j.tails)
	return out
}

// Sources returns the source nodes in topological order.
func (j *Job) Sources() []*Node {
	var out []*Node
	for _, n := range j.nodes {
		if n.kind == KindSource {
			out = append(out, n)
		}
	}
	return out
}

// Index returns the position of n in the topological order, or -1 if n is not
// part of the job.
func (j *Job) Index(n *Node) int {
	i, ok := j.index[n]
	if !ok {
		return -1
	}
	return i
}

// ID returns a stable identifier for n within the job, e.g. "n2:flatMap".
func (j *Job) ID(n *Node) string {
	return fmt.Sprintf("n%d:%s", j.Index(n), n.label)
}

// Downstream returns the consumers of n. A consumer that reads n more than
// once (Merge(p, p)) is listed once per read.
func (j *Job) Downstream(n *Node) []*Node {
	out := make([]*Node, len(j.down[n]))
	copy(out, j.down[n])
	return out
}

// Dot renders the job as a Graphviz digraph.
func (j *Job) Dot() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", j.name)
	for i, n := range j.nodes {
		fmt.Fprintf(&b, "  n%d [label=%q];\n", i, n.label)
	}
	for i, n := range j.nodes {
		for _, in := range n.inputs {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", j.index[in], i)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// String implements fmt.Stringer with a one-line pipeline summary.
func (j *Job) String() string {
	ids := make([]string, len(j.nodes))
	for i, n := range j.nodes {
		ids[i] = j.ID(n)
	}
	return j.name + "[" + strings.Join(ids, " ") + "]"
}
