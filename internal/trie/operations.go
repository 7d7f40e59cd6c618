package trie

// findNode returns the node reached by following key from the root, or nil
func (t Trie) findNode(key string) *Node {
	node := t.root
	for i := 0; i < len(key) && node != nil; i++ {
		node = node.children[key[i]]
	}
	return node
}

// Get returns the value stored at key. It reports false when the key is
// absent or when the stored value is not of type T.
//
// The returned pointer is shared with every version that holds the same
// value and must be treated as read-only.
func Get[T any](t Trie, key string) (*T, bool) {
	node := t.findNode(key)
	if node == nil || !node.isValue {
		return nil, false
	}
	v, ok := node.value.(*T)
	if !ok {
		return nil, false
	}
	return v, true
}

// Lookup returns the value handle stored at key without a type check. Two
// versions that share the value for key return identical handles, so the
// result can be compared with == to detect whether key changed between them.
func (t Trie) Lookup(key string) (any, bool) {
	node := t.findNode(key)
	if node == nil || !node.isValue {
		return nil, false
	}
	return node.value, true
}

// Put returns a new trie in which key maps to value. The value is moved into
// a fresh heap cell owned by the new version; t is not modified.
func Put[T any](t Trie, key string, value T) Trie {
	return t.put(key, &value)
}

func (t Trie) put(key string, handle any) Trie {
	root := cloneOrNew(t.root)

	// cur walks the new chain, orig the matching node of t (nil once the
	// path leaves t)
	cur, orig := root, t.root
	for i := 0; i < len(key); i++ {
		var next *Node
		if orig != nil {
			next = orig.children[key[i]]
		}
		clone := cloneOrNew(next)
		cur.children[key[i]] = clone
		cur, orig = clone, next
	}

	// cur is private to this call, so it is safe to fill in place
	cur.isValue = true
	cur.value = handle

	return Trie{root: root}
}

// Remove returns a new trie without key. Nodes left without a value and
// without children are pruned bottom-up; pruning stops at the first ancestor
// that still has children or holds a value of its own. Removing an absent key
// returns a new version with a fresh root that shares every subtree of t.
func (t Trie) Remove(key string) Trie {
	if t.root == nil {
		return Trie{}
	}

	// path[i] is the node of t reached after consuming key[:i]
	path := make([]*Node, 0, len(key)+1)
	node := t.root
	path = append(path, node)
	for i := 0; i < len(key); i++ {
		child, ok := node.children[key[i]]
		if !ok {
			return Trie{root: t.root.Clone()}
		}
		node = child
		path = append(path, node)
	}
	if !node.isValue {
		return Trie{root: t.root.Clone()}
	}

	// replacement for the current level; nil means the node is pruned
	var repl *Node
	if len(node.children) > 0 {
		repl = node.Clone()
		repl.demote()
	}

	for i := len(key) - 1; i >= 0; i-- {
		parent := path[i].Clone()
		if repl == nil {
			delete(parent.children, key[i])
		} else {
			parent.children[key[i]] = repl
		}
		if parent.dead() {
			repl = nil
			continue
		}
		repl = parent
	}

	return Trie{root: repl}
}
