package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a block could not be admitted.
type Kind uint8

const (
	KindNone Kind = iota
	// KindMalformed is a structural violation. Permanently invalid.
	KindMalformed
	// KindCryptoInvalid is a bad transaction signature or block seal. Permanently invalid.
	KindCryptoInvalid
	// KindStateTransitionInvalid is invalid against the chosen parent state only,
	// so it is never cached as globally invalid.
	KindStateTransitionInvalid
	// KindMissingParent is not a failure; the block is buffered.
	KindMissingParent
	// KindReorgDepthExceeded is a policy rejection. The block stays known
	// but not canonical.
	KindReorgDepthExceeded
	// KindStorageFailure is an I/O failure from the persistence layer. The only
	// kind that should be retried by the caller.
	KindStorageFailure
	// KindInvalidAncestor marks blocks descending from a permanently invalid block.
	KindInvalidAncestor
	// KindBodyMismatch is a body that does not match the header's tx root. The
	// hash only commits to the header, so the block itself is not invalid.
	KindBodyMismatch
)

var kindNames = map[Kind]string{
	KindNone:                   "none",
	KindMalformed:              "malformed",
	KindCryptoInvalid:          "crypto_invalid",
	KindStateTransitionInvalid: "state_transition_invalid",
	KindMissingParent:          "missing_parent",
	KindReorgDepthExceeded:     "reorg_depth_exceeded",
	KindStorageFailure:         "storage_failure",
	KindInvalidAncestor:        "invalid_ancestor",
	KindBodyMismatch:           "body_mismatch",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsPermanent reports whether a block rejected with this kind can never
// become valid.
func (k Kind) IsPermanent() bool {
	switch k {
	case KindMalformed, KindCryptoInvalid, KindInvalidAncestor:
		return true
	}
	return false
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block failed due to one of the validation rules or a
// ledger policy. The caller can use errors.As to determine the Kind.
type RuleError struct {
	Kind    Kind
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func New(kind Kind, message string) error {
	return errors.WithStack(RuleError{Kind: kind, message: message})
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(RuleError{Kind: kind, message: fmt.Sprintf(format, args...)})
}

func Wrap(kind Kind, inner error, message string) error {
	return errors.WithStack(RuleError{Kind: kind, message: message, inner: inner})
}

// KindOf returns the kind of a rule error. Errors that are not rule errors
// are failures of the storage layer.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var re RuleError
	if errors.As(err, &re) {
		return re.Kind
	}

	return KindStorageFailure
}

// IsRuleError reports whether err carries a RuleError that is not a storage
// failure.
func IsRuleError(err error) bool {
	k := KindOf(err)
	return k != KindNone && k != KindStorageFailure
}

// StorageFailure wraps a persistence error so the caller can identify it
func StorageFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	if IsRuleError(err) {
		return err
	}
	return Wrap(KindStorageFailure, err, message)
}
