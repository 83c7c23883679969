package trie

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// CollectableNodes is node storage that can enumerate and remove nodes
type CollectableNodes interface {
	Nodes
	Delete(ctx context.Context, id cid.Cid) error
	ForEach(ctx context.Context, fn func(cid.Cid) error) error
}

// Collect deletes every stored node not reachable from one of the live
// roots and returns the number of nodes removed. It must not run
// concurrently with writers of the same node storage.
func Collect(ctx context.Context, nodes CollectableNodes, live []cid.Cid) (int, error) {
	t := New(nodes)

	marked := make(map[cid.Cid]struct{})
	stack := make([]cid.Cid, 0, len(live))
	for _, r := range live {
		if !r.Equals(EmptyRoot) {
			stack = append(stack, r)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := marked[id]; ok {
			continue
		}
		marked[id] = struct{}{}

		n, err := t.load(ctx, id)
		if err != nil {
			return 0, errors.Wrap(err, "marking live nodes")
		}

		for i := range n.Children {
			if n.Children[i] == nil {
				continue
			}
			c, err := n.child(i)
			if err != nil {
				return 0, err
			}
			stack = append(stack, c)
		}
	}

	var dead []cid.Cid
	err := nodes.ForEach(ctx, func(id cid.Cid) error {
		if _, ok := marked[id]; !ok {
			dead = append(dead, id)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "listing nodes")
	}

	for i, id := range dead {
		if err := nodes.Delete(ctx, id); err != nil {
			return i, err
		}
	}

	return len(dead), nil
}
