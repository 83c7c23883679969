package ledger

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/forkchoice"
)

type Status uint8

const (
	StatusAccepted Status = iota
	StatusAlreadyKnown
	StatusBuffered
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusAlreadyKnown:
		return "already_known"
	case StatusBuffered:
		return "buffered"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Released is the result of an orphan released by a submission
type Released struct {
	Hash   cid.Cid
	Status Status
	Reason error
}

// Outcome is the result of submitting a block
type Outcome struct {
	Status Status
	Hash   cid.Cid

	// Reason is set for rejected blocks. Use ruleerrors.KindOf to classify it.
	Reason error

	// Reorg describes the change of the canonical view caused by the
	// submission, including released orphans.
	Reorg forkchoice.ReorgOutcome

	// Released lists the orphans processed because this block arrived
	Released []Released

	// Evicted lists orphans dropped to make room for this block
	Evicted []cid.Cid

	// Missing lists the unknown ancestors of a buffered block
	Missing []cid.Cid
}

var (
	ErrNoGenesis       = errors.New("genesis block required")
	ErrGenesisMismatch = errors.New("backend holds a different chain")
	ErrClosed          = errors.New("ledger closed")
)

func errInvalidOption(msg string) error {
	return errors.New(msg)
}
