package trie

import "maps"

// Node is a single trie node. A node is either a plain node, carrying only
// edges to its children, or a value node, which additionally terminates a
// stored key and holds exactly one value.
//
// Nodes are immutable once they are reachable from a Trie. Every change is
// made on a private clone that is then published as part of a new root chain.
type Node struct {
	// children maps the next key byte to the child node
	children map[byte]*Node

	// isValue marks a value node
	isValue bool

	// value holds a *T for value nodes; the pointer is shared by clones
	value any
}

// newNode creates an empty plain node
func newNode() *Node {
	return &Node{children: make(map[byte]*Node)}
}

// Clone returns a shallow copy of n. The children map is copied so the clone
// can be rewired freely; the child nodes and the value handle are shared.
func (n *Node) Clone() *Node {
	children := maps.Clone(n.children)
	if children == nil {
		children = make(map[byte]*Node)
	}
	return &Node{
		children: children,
		isValue:  n.isValue,
		value:    n.value,
	}
}

// IsValueNode reports whether a key terminates at n.
func (n *Node) IsValueNode() bool {
	return n.isValue
}

// Child returns the child reached through edge b.
func (n *Node) Child(b byte) (*Node, bool) {
	c, ok := n.children[b]
	return c, ok
}

// NumChildren returns the number of outgoing edges.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// cloneOrNew clones n, or returns a fresh plain node when n is nil
func cloneOrNew(n *Node) *Node {
	if n == nil {
		return newNode()
	}
	return n.Clone()
}

// demote turns a private clone into a plain node, dropping its value
func (n *Node) demote() {
	n.isValue = false
	n.value = nil
}

// dead reports whether n carries nothing and must not stay reachable
func (n *Node) dead() bool {
	return !n.isValue && len(n.children) == 0
}
