package trie

import (
	"bytes"
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/storage"
)

var (
	ErrAbsent     = errors.New("key absent")
	ErrCorrupt    = errors.New("corrupt trie node")
	ErrEmptyValue = errors.New("empty value")
)

// Nodes is the content addressed node storage a Trie reads and writes
type Nodes interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// Trie is a hex patricia trie over immutable, content addressed nodes.
// Every root is a snapshot: Put and Delete never modify nodes reachable from
// the root they were given, they return the root of a new version.
type Trie struct {
	nodes Nodes
}

func New(nodes Nodes) *Trie {
	return &Trie{nodes: nodes}
}

func (t *Trie) load(ctx context.Context, id cid.Cid) (*node, error) {
	if id.Equals(EmptyRoot) {
		return nil, nil
	}

	b, err := t.nodes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrCorrupt, "missing node %s", id)
		}
		return nil, errors.Wrap(err, "loading trie node")
	}

	return unmarshalNode(b)
}

func (t *Trie) save(ctx context.Context, n *node) (cid.Cid, error) {
	if n == nil {
		return EmptyRoot, nil
	}

	b, err := n.marshal()
	if err != nil {
		return cid.Undef, err
	}

	id, err := t.nodes.Put(ctx, b)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "storing trie node")
	}

	return id, nil
}

// Has reports whether every node of the root is available. Only the root
// node itself is checked.
func (t *Trie) Has(ctx context.Context, root cid.Cid) (bool, error) {
	if root.Equals(EmptyRoot) {
		return true, nil
	}
	return t.nodes.Has(ctx, root)
}

// Get returns the value stored under key in the version identified by root
func (t *Trie) Get(ctx context.Context, root cid.Cid, key []byte) ([]byte, error) {
	path := toNibbles(key)
	id := root

	for {
		n, err := t.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, ErrAbsent
		}

		switch n.Kind {
		case kindLeaf:
			if !equalPath(n.Path, path) {
				return nil, ErrAbsent
			}
			return concat(n.Value), nil

		case kindExtension:
			if !hasPrefix(path, n.Path) {
				return nil, ErrAbsent
			}
			path = path[len(n.Path):]
			if id, err = n.child(0); err != nil {
				return nil, err
			}

		case kindBranch:
			if len(path) == 0 {
				if len(n.Value) == 0 {
					return nil, ErrAbsent
				}
				return concat(n.Value), nil
			}
			if id, err = n.child(int(path[0])); err != nil {
				return nil, err
			}
			path = path[1:]
		}
	}
}

// Put stores value under key and returns the new root
func (t *Trie) Put(ctx context.Context, root cid.Cid, key, value []byte) (cid.Cid, error) {
	if len(value) == 0 {
		return cid.Undef, ErrEmptyValue
	}

	return t.insert(ctx, root, toNibbles(key), value)
}

func (t *Trie) insert(ctx context.Context, id cid.Cid, path, value []byte) (cid.Cid, error) {
	n, err := t.load(ctx, id)
	if err != nil {
		return cid.Undef, err
	}

	if n == nil {
		return t.save(ctx, newLeaf(path, value))
	}

	switch n.Kind {
	case kindLeaf:
		if equalPath(n.Path, path) {
			if bytes.Equal(n.Value, value) {
				return id, nil
			}
			return t.save(ctx, newLeaf(path, value))
		}

		common := prefixLen(path, n.Path)
		br := newBranch()
		if err := t.attach(ctx, br, n.Path[common:], n.Value); err != nil {
			return cid.Undef, err
		}
		if err := t.attach(ctx, br, path[common:], value); err != nil {
			return cid.Undef, err
		}

		return t.saveBranchUnder(ctx, path[:common], br)

	case kindExtension:
		child, err := n.child(0)
		if err != nil {
			return cid.Undef, err
		}

		common := prefixLen(path, n.Path)
		if common == len(n.Path) {
			newChild, err := t.insert(ctx, child, path[common:], value)
			if err != nil {
				return cid.Undef, err
			}
			if newChild.Equals(child) {
				return id, nil
			}
			return t.save(ctx, newExtension(n.Path, newChild))
		}

		//split the extension at the first differing nibble
		br := newBranch()
		rest := n.Path[common:]
		if len(rest) == 1 {
			br.setChild(int(rest[0]), child)
		} else {
			extID, err := t.save(ctx, newExtension(rest[1:], child))
			if err != nil {
				return cid.Undef, err
			}
			br.setChild(int(rest[0]), extID)
		}
		if err := t.attach(ctx, br, path[common:], value); err != nil {
			return cid.Undef, err
		}

		return t.saveBranchUnder(ctx, path[:common], br)

	default:
		br := n.clone()
		if len(path) == 0 {
			if bytes.Equal(n.Value, value) {
				return id, nil
			}
			br.Value = concat(value)
			return t.save(ctx, br)
		}

		slot := int(path[0])
		child, err := n.child(slot)
		if err != nil {
			return cid.Undef, err
		}

		newChild, err := t.insert(ctx, child, path[1:], value)
		if err != nil {
			return cid.Undef, err
		}
		if newChild.Equals(child) {
			return id, nil
		}

		br.setChild(slot, newChild)
		return t.save(ctx, br)
	}
}

// attach places value at the remaining path below a fresh branch
func (t *Trie) attach(ctx context.Context, br *node, rest, value []byte) error {
	if len(rest) == 0 {
		br.Value = concat(value)
		return nil
	}

	id, err := t.save(ctx, newLeaf(rest[1:], value))
	if err != nil {
		return err
	}

	br.setChild(int(rest[0]), id)
	return nil
}

func (t *Trie) saveBranchUnder(ctx context.Context, prefix []byte, br *node) (cid.Cid, error) {
	id, err := t.save(ctx, br)
	if err != nil {
		return cid.Undef, err
	}

	if len(prefix) == 0 {
		return id, nil
	}

	return t.save(ctx, newExtension(prefix, id))
}

// Delete removes key and returns the new root. Deleting an absent key
// returns the given root.
func (t *Trie) Delete(ctx context.Context, root cid.Cid, key []byte) (cid.Cid, error) {
	id, _, err := t.remove(ctx, root, toNibbles(key))
	return id, err
}

func (t *Trie) remove(ctx context.Context, id cid.Cid, path []byte) (cid.Cid, bool, error) {
	n, err := t.load(ctx, id)
	if err != nil {
		return cid.Undef, false, err
	}

	if n == nil {
		return id, false, nil
	}

	switch n.Kind {
	case kindLeaf:
		if !equalPath(n.Path, path) {
			return id, false, nil
		}
		return EmptyRoot, true, nil

	case kindExtension:
		if !hasPrefix(path, n.Path) {
			return id, false, nil
		}

		child, err := n.child(0)
		if err != nil {
			return cid.Undef, false, err
		}

		newChild, changed, err := t.remove(ctx, child, path[len(n.Path):])
		if err != nil || !changed {
			return id, false, err
		}

		newID, err := t.prefixed(ctx, n.Path, newChild)
		return newID, true, err

	default:
		br := n.clone()

		if len(path) == 0 {
			if len(n.Value) == 0 {
				return id, false, nil
			}
			br.Value = nil
		} else {
			slot := int(path[0])
			child, err := n.child(slot)
			if err != nil {
				return cid.Undef, false, err
			}

			newChild, changed, err := t.remove(ctx, child, path[1:])
			if err != nil || !changed {
				return id, false, err
			}

			br.setChild(slot, newChild)
		}

		newID, err := t.collapse(ctx, br)
		return newID, true, err
	}
}

// collapse restores the canonical shape of a branch that lost an entry. A
// branch always holds at least two entries.
func (t *Trie) collapse(ctx context.Context, br *node) (cid.Cid, error) {
	count, last := br.entries()
	hasValue := len(br.Value) > 0

	switch {
	case count == 0 && !hasValue:
		return EmptyRoot, nil
	case count == 0:
		return t.save(ctx, newLeaf(nil, br.Value))
	case count == 1 && !hasValue:
		child, err := br.child(last)
		if err != nil {
			return cid.Undef, err
		}
		return t.prefixed(ctx, []byte{byte(last)}, child)
	default:
		return t.save(ctx, br)
	}
}

// prefixed returns the id of child reached through prefix, merging the
// prefix into the child where the child is a leaf or an extension.
func (t *Trie) prefixed(ctx context.Context, prefix []byte, child cid.Cid) (cid.Cid, error) {
	n, err := t.load(ctx, child)
	if err != nil {
		return cid.Undef, err
	}

	if n == nil {
		return EmptyRoot, nil
	}

	switch n.Kind {
	case kindLeaf:
		return t.save(ctx, newLeaf(concat(prefix, n.Path), n.Value))
	case kindExtension:
		gc, err := n.child(0)
		if err != nil {
			return cid.Undef, err
		}
		return t.save(ctx, newExtension(concat(prefix, n.Path), gc))
	default:
		return t.save(ctx, newExtension(prefix, child))
	}
}

// Walk calls fn for every key/value pair under root in key order
func (t *Trie) Walk(ctx context.Context, root cid.Cid, fn func(key, value []byte) error) error {
	return t.walk(ctx, root, nil, fn)
}

func (t *Trie) walk(ctx context.Context, id cid.Cid, prefix []byte, fn func(key, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := t.load(ctx, id)
	if err != nil || n == nil {
		return err
	}

	switch n.Kind {
	case kindLeaf:
		return fn(fromNibbles(concat(prefix, n.Path)), concat(n.Value))

	case kindExtension:
		child, err := n.child(0)
		if err != nil {
			return err
		}
		return t.walk(ctx, child, concat(prefix, n.Path), fn)

	default:
		if len(n.Value) > 0 {
			if err := fn(fromNibbles(prefix), concat(n.Value)); err != nil {
				return err
			}
		}

		for i := 0; i < branchWidth; i++ {
			if n.Children[i] == nil {
				continue
			}

			child, err := n.child(i)
			if err != nil {
				return err
			}

			if err := t.walk(ctx, child, concat(prefix, []byte{byte(i)}), fn); err != nil {
				return err
			}
		}
	}

	return nil
}
