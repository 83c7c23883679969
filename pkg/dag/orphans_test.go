package dag

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
)

func id(s string) cid.Cid {
	return cryptography.MustContentID([]byte(s))
}

func TestOrphanRelease(t *testing.T) {
	p := NewOrphanPool(10, nil)

	b := &block.Block{}
	p.Add(b, id("x"), 1, []cid.Cid{id("p1"), id("p2")})

	assert.True(t, p.Has(id("x")))
	assert.Len(t, p.MissingAncestors(id("x")), 2)

	assert.Empty(t, p.Satisfy(id("p1")))
	assert.True(t, p.Has(id("x")))

	released := p.Satisfy(id("p2"))
	if assert.Len(t, released, 1) {
		assert.True(t, released[0].Hash.Equals(id("x")))
	}
	assert.Equal(t, 0, p.Len())

	//already satisfied parents release nothing
	assert.Empty(t, p.Satisfy(id("p2")))
}

func TestOrphanReleaseOrder(t *testing.T) {
	p := NewOrphanPool(10, nil)

	p.Add(&block.Block{}, id("b"), 1, []cid.Cid{id("p")})
	p.Add(&block.Block{}, id("a"), 1, []cid.Cid{id("p")})

	released := p.Satisfy(id("p"))
	if assert.Len(t, released, 2) {
		assert.True(t, released[0].Hash.Equals(id("b")))
		assert.True(t, released[1].Hash.Equals(id("a")))
	}
}

func TestOrphanEviction(t *testing.T) {
	var evicted []cid.Cid
	p := NewOrphanPool(2, func(o *Orphan) {
		evicted = append(evicted, o.Hash)
	})

	p.Add(&block.Block{}, id("heavy"), 10, []cid.Cid{id("p")})
	p.Add(&block.Block{}, id("light-old"), 1, []cid.Cid{id("p")})

	out := p.Add(&block.Block{}, id("light-new"), 1, []cid.Cid{id("q")})
	if assert.Len(t, out, 1) {
		assert.True(t, out[0].Hash.Equals(id("light-old")))
	}
	assert.Equal(t, []cid.Cid{id("light-old")}, evicted)

	out = p.Add(&block.Block{}, id("another"), 5, []cid.Cid{id("q")})
	if assert.Len(t, out, 1) {
		assert.True(t, out[0].Hash.Equals(id("light-new")))
	}

	assert.Equal(t, 2, p.Len())
	assert.True(t, p.Has(id("heavy")))
	assert.True(t, p.Has(id("another")))

	//evicted orphans are no longer indexed
	released := p.Satisfy(id("p"))
	assert.Len(t, released, 1)
}

func TestOrphanDrop(t *testing.T) {
	p := NewOrphanPool(10, nil)

	p.Add(&block.Block{}, id("child"), 1, []cid.Cid{id("bad")})
	p.Add(&block.Block{}, id("grandchild"), 1, []cid.Cid{id("child"), id("other")})
	p.Add(&block.Block{}, id("unrelated"), 1, []cid.Cid{id("other")})

	dropped := p.Drop(id("bad"))
	assert.Len(t, dropped, 2)
	assert.False(t, p.Has(id("child")))
	assert.False(t, p.Has(id("grandchild")))
	assert.True(t, p.Has(id("unrelated")))

	released := p.Satisfy(id("other"))
	if assert.Len(t, released, 1) {
		assert.True(t, released[0].Hash.Equals(id("unrelated")))
	}
}

func TestMissingAncestors(t *testing.T) {
	p := NewOrphanPool(10, nil)

	p.Add(&block.Block{}, id("b"), 1, []cid.Cid{id("a")})
	p.Add(&block.Block{}, id("c"), 1, []cid.Cid{id("b"), id("x")})

	roots := p.MissingAncestors(id("c"))
	expect := []cid.Cid{id("a"), id("x")}
	SortHashes(expect)
	assert.Equal(t, expect, roots)

	assert.Empty(t, p.MissingAncestors(id("unknown")))
}
