// Package trie implements a persistent, copy-on-write trie keyed by byte
// strings.
//
// Every mutation returns a new Trie and leaves the receiver untouched. Only
// the nodes on the path from the root to the affected key are copied; every
// other subtree is shared between the old and the new version. Because no
// node is modified after it becomes reachable from a Trie, any number of
// goroutines may read any number of versions without synchronization.
// Publishing a new version to other goroutines is up to the caller.
package trie

// Trie is an immutable version of the key-value mapping. The zero value is
// the empty trie.
type Trie struct {
	root *Node
}

// New returns the empty trie.
func New() Trie {
	return Trie{}
}

// Root returns the root node, or nil for the empty trie.
func (t Trie) Root() *Node {
	return t.root
}

// IsEmpty reports whether t holds no keys.
func (t Trie) IsEmpty() bool {
	return t.root == nil
}
