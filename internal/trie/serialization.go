package trie

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Serialization format:
// [node type: 1 byte][value length: 4 bytes][value][num children: 4 bytes][(edge: 1 byte, child offset: 8 bytes)...]
// - node type: 0 = internal node, 1 = leaf node, 2 = internal node with value
// - child offsets are relative to the start of the parent node
// - the empty trie encodes to zero bytes
// Only tries whose values are []byte can be encoded.

const (
	nodeTypeInternal = iota
	nodeTypeLeaf
	nodeTypeInternalWithValue
)

const (
	nodeHeaderSize = 9 // type (1) + valueLen (4) + numChildren (4)
	childEntrySize = 9 // edge (1) + offset (8)
)

var (
	// ErrUnsupportedValue is returned when encoding a value that is not a []byte.
	ErrUnsupportedValue = errors.New("trie: value is not a byte slice")
	// ErrCorruptSnapshot is returned when encoded data is malformed.
	ErrCorruptSnapshot = errors.New("trie: corrupt snapshot")
)

// Encode serializes a trie whose values are all []byte.
func Encode(t Trie) ([]byte, error) {
	if t.root == nil {
		return nil, nil
	}

	// Sizing every subtree first lets each node be written once, straight
	// into its final position.
	e := &encoder{layouts: make(map[*Node]*nodeLayout)}
	size, err := e.measure(t.root)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	e.write(t.root, buf)
	return buf, nil
}

// nodeLayout is the encoded shape of one node
type nodeLayout struct {
	nodeType byte
	value    []byte
	edges    []byte
	size     int // encoded size of the whole subtree
}

type encoder struct {
	layouts map[*Node]*nodeLayout
}

// measure records the layout of node and its subtree and returns the
// subtree's encoded size
func (e *encoder) measure(node *Node) (int, error) {
	l := &nodeLayout{edges: sortedEdges(node)}
	if node.isValue {
		v, ok := node.value.(*[]byte)
		if !ok {
			return 0, fmt.Errorf("%w: got %T", ErrUnsupportedValue, node.value)
		}
		l.value = *v
	}

	switch {
	case node.isValue && len(l.edges) > 0:
		l.nodeType = nodeTypeInternalWithValue
	case node.isValue:
		l.nodeType = nodeTypeLeaf
	default:
		l.nodeType = nodeTypeInternal
	}

	l.size = nodeHeaderSize + len(l.value) + len(l.edges)*childEntrySize
	for _, b := range l.edges {
		n, err := e.measure(node.children[b])
		if err != nil {
			return 0, err
		}
		l.size += n
	}

	e.layouts[node] = l
	return l.size, nil
}

// write encodes node and its subtree into buf, which is exactly the
// subtree's measured size
func (e *encoder) write(node *Node, buf []byte) {
	l := e.layouts[node]

	buf[0] = l.nodeType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(l.value)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(l.edges)))
	pos := nodeHeaderSize + copy(buf[nodeHeaderSize:], l.value)

	// children follow the child table in edge order
	childOffset := pos + len(l.edges)*childEntrySize
	for _, b := range l.edges {
		child := node.children[b]
		size := e.layouts[child].size

		buf[pos] = b
		binary.BigEndian.PutUint64(buf[pos+1:pos+childEntrySize], uint64(childOffset))
		pos += childEntrySize

		e.write(child, buf[childOffset:childOffset+size])
		childOffset += size
	}
}

// Decode rebuilds a trie produced by Encode. Values are []byte.
func Decode(data []byte) (Trie, error) {
	if len(data) == 0 {
		return Trie{}, nil
	}
	root, err := decodeNode(data, 0)
	if err != nil {
		return Trie{}, fmt.Errorf("failed to decode trie: %w", err)
	}
	return Trie{root: root}, nil
}

// decodeNode reads the node starting at offset and, recursively, its children
func decodeNode(data []byte, offset int) (*Node, error) {
	if offset < 0 || len(data)-offset < nodeHeaderSize {
		return nil, fmt.Errorf("%w: short node header at offset %d", ErrCorruptSnapshot, offset)
	}

	nodeType := data[offset]
	valueLen := int(binary.BigEndian.Uint32(data[offset+1 : offset+5]))
	numChildren := int(binary.BigEndian.Uint32(data[offset+5 : offset+9]))

	switch {
	case nodeType > nodeTypeInternalWithValue:
		return nil, fmt.Errorf("%w: unknown node type %d at offset %d", ErrCorruptSnapshot, nodeType, offset)
	case nodeType == nodeTypeInternal && (valueLen != 0 || numChildren == 0):
		return nil, fmt.Errorf("%w: invalid internal node at offset %d", ErrCorruptSnapshot, offset)
	case nodeType == nodeTypeLeaf && numChildren != 0:
		return nil, fmt.Errorf("%w: leaf with children at offset %d", ErrCorruptSnapshot, offset)
	case nodeType == nodeTypeInternalWithValue && numChildren == 0:
		return nil, fmt.Errorf("%w: internal node without children at offset %d", ErrCorruptSnapshot, offset)
	}

	pos := offset + nodeHeaderSize
	if valueLen > len(data)-pos || numChildren > (len(data)-pos-valueLen)/childEntrySize {
		return nil, fmt.Errorf("%w: node at offset %d overruns data", ErrCorruptSnapshot, offset)
	}

	node := newNode()
	if nodeType != nodeTypeInternal {
		value := make([]byte, valueLen)
		copy(value, data[pos:pos+valueLen])
		node.isValue = true
		node.value = &value
	}
	pos += valueLen

	nodeSize := pos + numChildren*childEntrySize - offset
	for i := 0; i < numChildren; i++ {
		entry := data[pos+i*childEntrySize : pos+(i+1)*childEntrySize]
		edge := entry[0]
		rel := binary.BigEndian.Uint64(entry[1:])

		// children always follow their parent, which rules out cycles
		if rel < uint64(nodeSize) || rel >= uint64(len(data)-offset) {
			return nil, fmt.Errorf("%w: invalid child offset %d at offset %d", ErrCorruptSnapshot, rel, offset)
		}
		if _, dup := node.children[edge]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %q at offset %d", ErrCorruptSnapshot, edge, offset)
		}

		child, err := decodeNode(data, offset+int(rel))
		if err != nil {
			return nil, err
		}
		node.children[edge] = child
	}

	return node, nil
}
