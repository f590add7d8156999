package proof

import "errors"

// Submission errors. A submission that fails with any of them leaves the
// state untouched.
var (
	ErrNotProvider                   = errors.New("caller is not a registered provider")
	ErrNoRecordOfLastSubmittedProof  = errors.New("no record of last submitted proof")
	ErrChallengesTickNotReached      = errors.New("challenges tick not reached")
	ErrEmptyKeyProofs                = errors.New("empty key proofs")
	ErrIncorrectNumberOfKeyProofs    = errors.New("incorrect number of key proofs")
	ErrKeyProofNotFound              = errors.New("key proof not found")
	ErrForestProofVerificationFailed = errors.New("forest proof verification failed")
	ErrKeyProofVerificationFailed    = errors.New("key proof verification failed")
	ErrTooManyValidProofSubmitters   = errors.New("too many valid proof submitters for tick")
	ErrFailedToApplyDelta            = errors.New("failed to apply delta to forest root")
)
