package seal

import (
	"math/bits"

	"github.com/pkg/errors"
	"github.com/tcfw/dagledger/pkg/block"
	"github.com/tcfw/dagledger/pkg/cryptography"
)

const (
	maxWorkBits = 63
)

// Work requires the digest of the sealing bytes to have enough leading zero
// bits: a header may declare at most 2^n weight for n leading zero bits.
type Work struct {
	// MaxAttempts bounds Seal. Zero is unbounded.
	MaxAttempts uint64
}

func leadingZeroBits(d [32]byte) int {
	n := 0
	for _, b := range d {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}

	if n > maxWorkBits {
		return maxWorkBits
	}
	return n
}

// requiredBits is the smallest n with 2^n >= w
func requiredBits(w uint64) int {
	if w <= 1 {
		return 0
	}
	return bits.Len64(w - 1)
}

func (Work) Verify(h *block.Header) (uint64, error) {
	if h.Weight == 0 {
		return 0, ErrZeroWeight
	}

	need := requiredBits(h.Weight)
	if need > maxWorkBits {
		return 0, ErrInsufficientWork
	}

	b, err := h.SealingBytes()
	if err != nil {
		return 0, err
	}

	if leadingZeroBits(cryptography.Digest(b)) < need {
		return 0, ErrInsufficientWork
	}

	return h.Weight, nil
}

// Seal searches for a nonce satisfying the declared weight
func (w Work) Seal(h *block.Header) error {
	if h.Weight == 0 {
		h.Weight = 1
	}

	need := requiredBits(h.Weight)
	if need > maxWorkBits {
		return ErrInsufficientWork
	}

	for i := uint64(0); w.MaxAttempts == 0 || i < w.MaxAttempts; i++ {
		b, err := h.SealingBytes()
		if err != nil {
			return err
		}

		if leadingZeroBits(cryptography.Digest(b)) >= need {
			return nil
		}

		h.Seal.Nonce++
	}

	return errors.Wrap(ErrInsufficientWork, "nonce search exhausted")
}
