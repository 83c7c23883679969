package node

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tcfw/dagledger/internal/config"
	"github.com/tcfw/dagledger/internal/storage"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/ledger"
	"github.com/tcfw/dagledger/pkg/ruleerrors"
	storageIface "github.com/tcfw/dagledger/pkg/storage"
)

const (
	defaultRetries = 8
)

// Node is a ledger opened from the process configuration
type Node struct {
	cfg     *config.Config
	backend storageIface.Backend
	ledger  *ledger.Ledger

	registry *prometheus.Registry
	metrics  *http.Server

	retries int
	backoff func() *backoff.Backoff

	logger *logrus.Logger
}

func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func NewNode(ctx context.Context, opts ...NodeOption) (*Node, error) {
	n := &Node{
		retries: defaultRetries,
		backoff: func() *backoff.Backoff {
			return &backoff.Backoff{
				Min: 100 * time.Millisecond,
				Max: 10 * time.Second,
			}
		},
		logger: logrus.StandardLogger(),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	var err error

	if n.cfg == nil {
		n.cfg, err = config.GetConfig()
		if err != nil {
			return nil, err
		}
	}

	if n.backend == nil {
		n.backend, err = storage.NewPebbleStore(n.cfg.StoragePath())
		if err != nil {
			return nil, errors.Wrap(err, "initing storage")
		}
	}

	genesis, err := n.cfg.Chain().Genesis.Block()
	if err != nil {
		return nil, errors.Wrap(err, "building genesis block")
	}

	sv, err := n.cfg.Seal().Verifier()
	if err != nil {
		return nil, err
	}

	lcfg := n.cfg.Ledger()
	n.registry = prometheus.NewRegistry()

	n.ledger, err = ledger.New(ctx,
		ledger.WithBackend(n.backend),
		ledger.WithGenesis(genesis),
		ledger.WithLogger(n.logger.WithField("component", "ledger")),
		ledger.WithSealVerifier(sv),
		ledger.WithMaxReorgDepth(lcfg.MaxReorgDepth),
		ledger.WithOrphanCapacity(lcfg.OrphanCapacity),
		ledger.WithNodeCacheSize(lcfg.NodeCacheSize),
		ledger.WithRules(lcfg.Rules),
		ledger.WithRegisterer(n.registry),
	)
	if err != nil {
		n.backend.Close()
		return nil, errors.Wrap(err, "opening ledger")
	}

	n.logger.WithFields(logrus.Fields{
		"chain": n.cfg.Chain().Genesis.ChainID,
		"tip":   n.ledger.CanonicalTip(),
	}).Info("ledger ready")

	return n, nil
}

// Submit submits a block, retrying with backoff while the storage layer
// fails. Validation failures are returned in the outcome.
func (n *Node) Submit(ctx context.Context, b *block.Block) (*ledger.Outcome, error) {
	bo := n.backoff()

	for attempt := 1; ; attempt++ {
		out, err := n.ledger.SubmitBlock(ctx, b)
		if err == nil {
			return out, nil
		}

		if ruleerrors.KindOf(err) != ruleerrors.KindStorageFailure || attempt >= n.retries {
			return out, err
		}

		d := bo.Duration()
		n.logger.WithError(err).
			WithField("attempt", attempt).
			WithField("waiting", d).
			Warn("storage failure submitting block")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
}

// ImportStats counts the outcomes of an import. Released orphans are counted
// again with their final status.
type ImportStats struct {
	Accepted     int
	AlreadyKnown int
	Buffered     int
	Rejected     int
}

func (s *ImportStats) add(st ledger.Status) {
	switch st {
	case ledger.StatusAccepted:
		s.Accepted++
	case ledger.StatusAlreadyKnown:
		s.AlreadyKnown++
	case ledger.StatusBuffered:
		s.Buffered++
	case ledger.StatusRejected:
		s.Rejected++
	}
}

// Import submits a stream of msgpack encoded blocks in order
func (n *Node) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	dec := msgpack.NewDecoder(r)
	stats := &ImportStats{}

	for {
		b := &block.Block{}
		if err := dec.Decode(b); err != nil {
			if err == io.EOF {
				return stats, nil
			}
			return stats, errors.Wrap(err, "decoding block")
		}

		out, err := n.Submit(ctx, b)
		if err != nil {
			return stats, err
		}

		stats.add(out.Status)
		for _, r := range out.Released {
			stats.add(r.Status)
		}

		if out.Status == ledger.StatusRejected {
			n.logger.WithError(out.Reason).
				WithField("block", out.Hash).
				WithField("kind", ruleerrors.KindOf(out.Reason)).
				Warn("block rejected")
		}
	}
}

// ListenAndServe serves the prometheus metrics if metrics.listen is set and
// blocks until ctx is done.
func (n *Node) ListenAndServe(ctx context.Context) error {
	addr := n.cfg.MetricsListen()
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	n.metrics = &http.Server{Addr: addr, Handler: mux}

	n.logger.WithField("addr", addr).Info("serving metrics")

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.metrics.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		return n.metrics.Shutdown(context.Background())
	}
}

func (n *Node) Stop() error {
	n.logger.Warn("Shutting down")

	return n.ledger.Close()
}
