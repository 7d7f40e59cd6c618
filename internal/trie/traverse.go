package trie

import "sort"

// WalkFunc is called for each key-value pair visited by Walk. The value is
// the stored handle (a *T). Returning false stops the walk.
type WalkFunc func(key string, value any) bool

// Walk visits every key starting with prefix in lexicographic byte order.
func (t Trie) Walk(prefix string, f WalkFunc) {
	node := t.findNode(prefix)
	if node == nil {
		return
	}
	walkNode(node, []byte(prefix), f)
}

// walkNode visits node and its subtree; it returns false once f asked to stop
func walkNode(node *Node, key []byte, f WalkFunc) bool {
	if node.isValue {
		if !f(string(key), node.value) {
			return false
		}
	}

	for _, b := range sortedEdges(node) {
		if !walkNode(node.children[b], append(key, b), f) {
			return false
		}
	}
	return true
}

// sortedEdges returns the edge labels of node in ascending order
func sortedEdges(node *Node) []byte {
	edges := make([]byte, 0, len(node.children))
	for b := range node.children {
		edges = append(edges, b)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })
	return edges
}

// KeysWithPrefix returns all keys that start with prefix, sorted.
func (t Trie) KeysWithPrefix(prefix string) []string {
	var keys []string
	t.Walk(prefix, func(key string, _ any) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Len returns the number of keys stored in t.
func (t Trie) Len() int {
	n := 0
	t.Walk("", func(string, any) bool {
		n++
		return true
	})
	return n
}
