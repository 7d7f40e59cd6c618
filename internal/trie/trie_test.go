package trie

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifyNoDeadNodes fails if any node reachable from root carries neither a
// value nor children
func verifyNoDeadNodes(t *testing.T, node *Node, path string) {
	t.Helper()
	if node == nil {
		return
	}
	assert.False(t, node.dead(), "dead node reachable at %q", path)
	for b, child := range node.children {
		verifyNoDeadNodes(t, child, path+string(b))
	}
}

func countNodes(node *Node) int {
	if node == nil {
		return 0
	}
	n := 1
	for _, child := range node.children {
		n += countNodes(child)
	}
	return n
}

func mustGet[T any](t *testing.T, tr Trie, key string) T {
	t.Helper()
	v, ok := Get[T](tr, key)
	require.True(t, ok, "key %q not found", key)
	return *v
}

func TestTrie_Scenario(t *testing.T) {
	t0 := New()
	t1 := Put(t0, "ab", uint32(1))
	t2 := Put(t1, "a", uint32(2))

	assert.Equal(t, uint32(1), mustGet[uint32](t, t2, "ab"))
	assert.Equal(t, uint32(2), mustGet[uint32](t, t2, "a"))

	_, ok := Get[uint32](t1, "a")
	assert.False(t, ok, "t1 must not see a later put")
	_, ok = Get[uint32](t0, "ab")
	assert.False(t, ok, "t0 must stay empty")
	assert.True(t, t0.IsEmpty())
}

func TestTrie_GetAbsent(t *testing.T) {
	tr := Put(New(), "hello", "world")

	tests := []struct {
		name string
		key  string
	}{
		{name: "empty key on plain root", key: ""},
		{name: "proper prefix", key: "hell"},
		{name: "extension", key: "hello!"},
		{name: "unrelated", key: "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Get[string](tr, tt.key)
			assert.False(t, ok)
			assert.Nil(t, v)
		})
	}

	_, ok := Get[string](New(), "hello")
	assert.False(t, ok, "empty trie has no keys")
}

func TestTrie_TypeMismatch(t *testing.T) {
	tr := Put(New(), "k", "a string")

	v, ok := Get[uint32](tr, "k")
	assert.False(t, ok)
	assert.Nil(t, v)

	assert.Equal(t, "a string", mustGet[string](t, tr, "k"))
}

func TestTrie_EmptyKey(t *testing.T) {
	tr := Put(New(), "", 42)
	assert.Equal(t, 42, mustGet[int](t, tr, ""))

	removed := tr.Remove("")
	_, ok := Get[int](removed, "")
	assert.False(t, ok)
	assert.True(t, removed.IsEmpty(), "root without children must be pruned")

	// the root keeps its children when it becomes a value node
	withChild := Put(New(), "a", 1)
	rooted := Put(withChild, "", 0)
	assert.Equal(t, 1, mustGet[int](t, rooted, "a"))
	assert.Equal(t, 0, mustGet[int](t, rooted, ""))

	demoted := rooted.Remove("")
	assert.False(t, demoted.IsEmpty())
	assert.False(t, demoted.root.IsValueNode())
	assert.Equal(t, 1, mustGet[int](t, demoted, "a"))
}

func TestTrie_Overwrite(t *testing.T) {
	base := Put(Put(New(), "key", "v1"), "other", "x")
	updated := Put(base, "key", "v2")

	assert.Equal(t, "v2", mustGet[string](t, updated, "key"))
	assert.Equal(t, "x", mustGet[string](t, updated, "other"))
	assert.Equal(t, "v1", mustGet[string](t, base, "key"))

	// overwriting with a different type replaces the value entirely
	retyped := Put(updated, "key", uint64(7))
	assert.Equal(t, uint64(7), mustGet[uint64](t, retyped, "key"))
	_, ok := Get[string](retyped, "key")
	assert.False(t, ok)
}

func TestTrie_PrefixIndependence(t *testing.T) {
	long := Put(New(), "test", 1)
	both := Put(long, "te", 2)

	assert.Equal(t, 1, mustGet[int](t, both, "test"))
	assert.Equal(t, 2, mustGet[int](t, both, "te"))

	short := Put(New(), "te", 2)
	both = Put(short, "test", 1)
	assert.Equal(t, 1, mustGet[int](t, both, "test"))
	assert.Equal(t, 2, mustGet[int](t, both, "te"))

	// removing the longer key keeps the prefix
	trimmed := both.Remove("test")
	assert.Equal(t, 2, mustGet[int](t, trimmed, "te"))
	_, ok := Get[int](trimmed, "test")
	assert.False(t, ok)
	verifyNoDeadNodes(t, trimmed.root, "")

	// removing the prefix keeps the longer key
	kept := both.Remove("te")
	assert.Equal(t, 1, mustGet[int](t, kept, "test"))
	_, ok = Get[int](kept, "te")
	assert.False(t, ok)
	node := kept.findNode("te")
	require.NotNil(t, node)
	assert.False(t, node.IsValueNode())
}

func TestTrie_RemoveAbsent(t *testing.T) {
	tr := Put(Put(New(), "abc", 1), "abd", 2)

	for _, key := range []string{"", "a", "ab", "abx", "abcd", "zzz"} {
		t.Run(fmt.Sprintf("key %q", key), func(t *testing.T) {
			next := tr.Remove(key)
			assert.NotSame(t, tr.root, next.root, "a new version must be returned")
			child, ok := next.root.Child('a')
			require.True(t, ok)
			assert.Same(t, tr.findNode("a"), child, "subtrees must be shared")
			assert.Equal(t, 1, mustGet[int](t, next, "abc"))
			assert.Equal(t, 2, mustGet[int](t, next, "abd"))
			assert.Equal(t, 2, next.Len())
		})
	}

	assert.True(t, New().Remove("a").IsEmpty())
}

func TestTrie_RemovePrunesChain(t *testing.T) {
	tr := Put(New(), "a", 1)
	tr = Put(tr, "abcdef", 2)
	require.Equal(t, 7, countNodes(tr.root))

	removed := tr.Remove("abcdef")
	verifyNoDeadNodes(t, removed.root, "")
	assert.Equal(t, 2, countNodes(removed.root), "root and value node for a remain")
	assert.Equal(t, 1, mustGet[int](t, removed, "a"))

	a, ok := removed.root.Child('a')
	require.True(t, ok)
	assert.Equal(t, 0, a.NumChildren())

	// the only key going away empties the trie
	only := Put(New(), "xyz", 1).Remove("xyz")
	assert.True(t, only.IsEmpty())
	assert.Equal(t, 0, countNodes(only.root))
}

func TestTrie_RemoveStopsAtBranch(t *testing.T) {
	tr := Put(Put(New(), "abc", 1), "abx", 2)
	removed := tr.Remove("abc")

	verifyNoDeadNodes(t, removed.root, "")
	b := removed.findNode("ab")
	require.NotNil(t, b)
	assert.Equal(t, 1, b.NumChildren())
	assert.Equal(t, 2, mustGet[int](t, removed, "abx"))

	// the old version still has both
	assert.Equal(t, 1, mustGet[int](t, tr, "abc"))
	assert.Equal(t, 2, mustGet[int](t, tr, "abx"))
}

func TestTrie_Sharing(t *testing.T) {
	tr := Put(New(), "left/one", 1)
	tr = Put(tr, "left/two", 2)
	tr = Put(tr, "right/one", 3)

	leftBefore, ok := tr.root.Child('l')
	require.True(t, ok)
	rightBefore, ok := tr.root.Child('r')
	require.True(t, ok)

	t.Run("put", func(t *testing.T) {
		next := Put(tr, "right/two", 4)
		left, ok := next.root.Child('l')
		require.True(t, ok)
		assert.Same(t, leftBefore, left, "untouched branch must be shared")

		right, ok := next.root.Child('r')
		require.True(t, ok)
		assert.NotSame(t, rightBefore, right, "path nodes must be copied")
		assert.NotSame(t, tr.root, next.root)
	})

	t.Run("remove", func(t *testing.T) {
		next := tr.Remove("right/one")
		left, ok := next.root.Child('l')
		require.True(t, ok)
		assert.Same(t, leftBefore, left)
		_, ok = next.root.Child('r')
		assert.False(t, ok, "right branch must be pruned")

		next = tr.Remove("left/one")
		right, ok := next.root.Child('r')
		require.True(t, ok)
		assert.Same(t, rightBefore, right)
		two := next.findNode("left/")
		require.NotNil(t, two)
		assert.Same(t, tr.findNode("left/two"), next.findNode("left/two"))
	})

	t.Run("value handle", func(t *testing.T) {
		next := Put(tr, "other", 9)
		before, _ := tr.Lookup("left/one")
		after, _ := next.Lookup("left/one")
		assert.True(t, before == after, "unchanged values share their handle")

		rewritten := Put(tr, "left/one", 1)
		after, _ = rewritten.Lookup("left/one")
		assert.False(t, before == after, "a put always installs a new handle")
	})
}

func TestTrie_Immutability(t *testing.T) {
	keys := []string{"", "a", "ab", "abc", "b", "ba", "bab"}

	base := New()
	for i, k := range keys {
		base = Put(base, k, i)
	}

	snapshot := func(tr Trie) map[string]int {
		got := make(map[string]int)
		for _, k := range append(keys, "zz", "abcd") {
			if v, ok := Get[int](tr, k); ok {
				got[k] = *v
			}
		}
		return got
	}
	want := snapshot(base)
	nodes := countNodes(base.root)

	for _, k := range append(keys, "zz", "abcd") {
		_ = Put(base, k, -1)
		_ = base.Remove(k)
	}

	assert.Equal(t, want, snapshot(base))
	assert.Equal(t, nodes, countNodes(base.root))
}

func TestTrie_MoveOnlyLikeValues(t *testing.T) {
	type blocked struct {
		mu sync.Mutex
		n  int
	}

	tr := Put(New(), "lock", &blocked{n: 3})
	v := mustGet[*blocked](t, tr, "lock")
	assert.Equal(t, 3, v.n)

	ch := make(chan int, 1)
	tr = Put(tr, "chan", ch)
	got := mustGet[chan int](t, tr, "chan")
	got <- 5
	assert.Equal(t, 5, <-ch)
}

func TestTrie_ConcurrentReaders(t *testing.T) {
	tr := New()
	for i := 0; i < 100; i++ {
		tr = Put(tr, fmt.Sprintf("key-%03d", i), i)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			local := tr
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%03d", i)
				v, ok := Get[int](tr, key)
				if !ok || *v != i {
					t.Errorf("reader %d: key %s = %v, %v", g, key, v, ok)
					return
				}
				// writers derive private versions from the shared one
				local = Put(local, key, -g)
				local = local.Remove(key)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 100, tr.Len())
}
