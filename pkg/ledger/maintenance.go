package ledger

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/dagledger/pkg/dag"
	"github.com/tcfw/dagledger/pkg/forkchoice"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	"github.com/tcfw/dagledger/pkg/storage"
	"github.com/tcfw/dagledger/pkg/trie"
)

// CollectGarbage removes trie nodes that are not reachable from the state
// root of any accepted block or any position of the canonical order. It
// returns the number of removed nodes.
func (l *Ledger) CollectGarbage(ctx context.Context) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}

	live := make(map[cid.Cid]struct{})
	for _, r := range l.canonical.Roots {
		live[r] = struct{}{}
	}

	l.store.Range(func(r *dag.Record) bool {
		live[r.StateRoot] = struct{}{}
		return true
	})

	roots := make([]cid.Cid, 0, len(live))
	for r := range live {
		roots = append(roots, r)
	}

	n, err := trie.Collect(ctx, l.nodes, roots)
	if err != nil {
		return n, ruleerrors.StorageFailure(err, "collecting garbage")
	}

	l.log.WithFields(logrus.Fields{
		"removed": n,
		"live":    len(roots),
	}).Info("collected trie garbage")

	return n, nil
}

// SetMaxReorgDepth changes the reorg depth policy. Tips skipped under the
// previous policy are only adopted after Reconsider.
func (l *Ledger) SetMaxReorgDepth(n int) error {
	if n < 0 {
		return errInvalidOption("max reorg depth must not be negative")
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.fc.SetMaxReorgDepth(n)
	return nil
}

// Reconsider re-runs the fork choice over the known tips
func (l *Ledger) Reconsider(ctx context.Context) (forkchoice.ReorgOutcome, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return forkchoice.ReorgOutcome{}, ErrClosed
	}

	next, out, err := l.fc.Reconsider(ctx, l.store, l.canonical)
	if err != nil {
		return out, ruleerrors.StorageFailure(err, "reconsidering tips")
	}

	if !next.Tip.Equals(l.canonical.Tip) {
		if err := l.backend.Put(storage.MetaKey(metaTip), next.Tip.Bytes()); err != nil {
			return forkchoice.ReorgOutcome{}, ruleerrors.StorageFailure(err, "persisting tip")
		}
	}

	l.canonical = next
	if out.Kind == forkchoice.Reorganize {
		l.metrics.reorgs.Inc()
		l.metrics.reorgDepth.Observe(float64(out.Depth()))
	}

	l.publish()

	return out, nil
}

// Close releases the backend. The ledger can not be used afterwards.
func (l *Ledger) Close() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if n := l.orphans.Len(); n > 0 {
		l.log.WithField("orphans", n).Info("discarding buffered orphans")
	}

	return l.backend.Close()
}
