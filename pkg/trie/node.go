package trie

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/vmihailenco/msgpack/v5"
)

type nodeKind uint8

const (
	kindEmpty nodeKind = iota
	kindLeaf
	kindExtension
	kindBranch
)

const branchWidth = 16

// node is the persisted form of every trie node.
//
// Leaf: Path is the remaining key suffix, Value the stored value.
// Extension: Path is the shared segment, Children holds the single child
// which is always a branch.
// Branch: Children holds 16 slots (nil = empty), Value is set when a key
// ends at the branch.
type node struct {
	Kind     nodeKind `msgpack:"k"`
	Path     []byte   `msgpack:"p,omitempty"`
	Children [][]byte `msgpack:"c,omitempty"`
	Value    []byte   `msgpack:"v,omitempty"`
}

var (
	// EmptyRoot is the root of a trie without any keys. It is never stored.
	EmptyRoot cid.Cid
)

func init() {
	b, err := msgpack.Marshal(&node{Kind: kindEmpty})
	if err != nil {
		panic(err)
	}

	EmptyRoot = cryptography.MustContentID(b)
}

func newLeaf(path, value []byte) *node {
	return &node{Kind: kindLeaf, Path: concat(path), Value: concat(value)}
}

func newExtension(path []byte, child cid.Cid) *node {
	return &node{Kind: kindExtension, Path: concat(path), Children: [][]byte{child.Bytes()}}
}

func newBranch() *node {
	return &node{Kind: kindBranch, Children: make([][]byte, branchWidth)}
}

func (n *node) marshal() ([]byte, error) {
	b, err := msgpack.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling trie node")
	}
	return b, nil
}

func unmarshalNode(b []byte) (*node, error) {
	n := &node{}
	if err := msgpack.Unmarshal(b, n); err != nil {
		return nil, errors.Wrap(err, "unmarshaling trie node")
	}

	switch n.Kind {
	case kindLeaf:
	case kindExtension:
		if len(n.Children) != 1 || len(n.Path) == 0 {
			return nil, ErrCorrupt
		}
	case kindBranch:
		if len(n.Children) != branchWidth {
			return nil, ErrCorrupt
		}
	default:
		return nil, ErrCorrupt
	}

	return n, nil
}

// child returns the id in the given child slot or EmptyRoot if the slot is empty
func (n *node) child(i int) (cid.Cid, error) {
	if i >= len(n.Children) || n.Children[i] == nil {
		return EmptyRoot, nil
	}

	id, err := cid.Cast(n.Children[i])
	if err != nil {
		return cid.Undef, errors.Wrap(ErrCorrupt, err.Error())
	}
	return id, nil
}

func (n *node) setChild(i int, id cid.Cid) {
	if id.Equals(EmptyRoot) {
		n.Children[i] = nil
		return
	}
	n.Children[i] = id.Bytes()
}

func (n *node) clone() *node {
	c := &node{Kind: n.Kind, Path: concat(n.Path), Value: concat(n.Value)}
	if n.Children != nil {
		c.Children = make([][]byte, len(n.Children))
		copy(c.Children, n.Children)
	}
	return c
}

// entries counts the occupied child slots of a branch and returns the index
// of the last one
func (n *node) entries() (count int, last int) {
	last = -1
	for i, c := range n.Children {
		if c != nil {
			count++
			last = i
		}
	}
	return
}
