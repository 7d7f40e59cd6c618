package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrie_KeysWithPrefix(t *testing.T) {
	tr := New()
	testData := map[string][]byte{
		"apple":  []byte("fruit"),
		"app":    []byte("short"),
		"banana": []byte("yellow"),
		"orange": []byte("orange"),
	}
	for k, v := range testData {
		tr = Put(tr, k, v)
	}

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{name: "prefix 'app'", prefix: "app", want: []string{"app", "apple"}},
		{name: "prefix 'ban'", prefix: "ban", want: []string{"banana"}},
		{name: "all keys", prefix: "", want: []string{"app", "apple", "banana", "orange"}},
		{name: "non-existent prefix", prefix: "xyz", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.KeysWithPrefix(tt.prefix))
		})
	}
	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, 0, New().Len())
}

func TestTrie_WalkStops(t *testing.T) {
	tr := New()
	for _, k := range []string{"a", "b", "c", "d"} {
		tr = Put(tr, k, k)
	}

	var seen []string
	tr.Walk("", func(key string, value any) bool {
		seen = append(seen, *value.(*string))
		return key != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}
