package provider

import "errors"

var (
	ErrZeroStake           = errors.New("provider has zero stake")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAlreadyRegistered   = errors.New("provider already registered")
	ErrAccountInUse        = errors.New("account already controls a provider")
	ErrNoSubmissionRecord  = errors.New("no proof submission record")
	ErrInconsistentIndexes = errors.New("deadline indexes are inconsistent")
)
