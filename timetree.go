package boot

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/m1gwings/treedrawer/tree"
)

// TimeNode is one executed unit in the timing tree.
type TimeNode struct {
	ID       string        `json:"id"`
	Parent   string        `json:"parent,omitempty"`
	Label    string        `json:"label"`
	Start    time.Time     `json:"start"`
	Stop     time.Time     `json:"stop"`
	Diff     time.Duration `json:"diff"`
	Children []*TimeNode   `json:"nodes"`
}

// TimeTree records when each unit started and settled, mirroring the shape of
// the boot tree. Skipped units never appear; a unit that failed still gets a
// stop time.
type TimeTree struct {
	mu       sync.RWMutex
	nodes    map[string]*TimeNode
	byParent map[string][]string
	roots    []string
}

func newTimeTree() *TimeTree {
	return &TimeTree{
		nodes:    make(map[string]*TimeNode),
		byParent: make(map[string][]string),
	}
}

func (t *TimeTree) add(id, parent, label string, start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := &TimeNode{ID: id, Parent: parent, Label: label, Start: start}
	t.nodes[id] = n
	if parent == "" || t.nodes[parent] == nil {
		n.Parent = ""
		t.roots = append(t.roots, id)
		return
	}
	t.byParent[parent] = append(t.byParent[parent], id)
}

func (t *TimeTree) stop(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.nodes[id]
	if n == nil {
		return
	}
	n.Stop = at
	n.Diff = at.Sub(n.Start)
}

// Snapshot returns a deep copy of the recorded tree, children in execution
// order. The result is safe to hold across further boot activity.
func (t *TimeTree) Snapshot() []*TimeNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TimeNode, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.cloneLocked(id))
	}
	return out
}

func (t *TimeTree) cloneLocked(id string) *TimeNode {
	n := t.nodes[id]
	c := *n
	c.Children = make([]*TimeNode, 0, len(t.byParent[id]))
	for _, childID := range t.byParent[id] {
		c.Children = append(c.Children, t.cloneLocked(childID))
	}
	return &c
}

// MarshalJSON serializes the tree from its roots.
func (t *TimeTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// String renders the tree as ASCII art with per-unit durations.
func (t *TimeTree) String() string {
	roots := t.Snapshot()
	if len(roots) == 0 {
		return ""
	}
	out := ""
	for _, root := range roots {
		d := tree.NewTree(tree.NodeString(nodeLabel(root)))
		addChildren(d, root)
		out += d.String()
	}
	return out
}

func addChildren(d *tree.Tree, n *TimeNode) {
	for i, child := range n.Children {
		d.AddChild(tree.NodeString(nodeLabel(child)))
		sub, err := d.Child(i)
		if err != nil {
			continue
		}
		addChildren(sub, child)
	}
}

func nodeLabel(n *TimeNode) string {
	return fmt.Sprintf("%s (%s)", n.Label, n.Diff.Round(time.Microsecond))
}
