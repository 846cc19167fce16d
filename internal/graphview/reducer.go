package graphview

import "github.com/flowscope/flowscope/pkg/schema"

// ApplyStatuses merges the projected statuses onto the node list, returning
// a new slice. Nodes without an entry in the status map keep their current
// state; positions are always preserved.
func ApplyStatuses(nodes []Node, statuses map[string]Status) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		if st, ok := statuses[n.ID]; ok {
			n.State = st.State
			n.Output = st.Output
			n.Error = st.Error
		}
		out[i] = n
	}
	return out
}

// ResetNodes returns a new node list with every node back at pending and
// output/error cleared. Positions are preserved so a cleared run does not
// rearrange the canvas.
func ResetNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.State = schema.NodeStatePending
		n.Output = nil
		n.Error = ""
		out[i] = n
	}
	return out
}

// ReduceNodes is the legacy coupling between the two modes: an empty event
// log means reset, anything else means apply. Callers that can distinguish
// "no updates yet" from "run cleared" should call ApplyStatuses or
// ResetNodes directly.
func ReduceNodes(nodes []Node, statuses map[string]Status, logEmpty bool) []Node {
	if logEmpty {
		return ResetNodes(nodes)
	}
	return ApplyStatuses(nodes, statuses)
}
