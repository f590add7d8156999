package store

import "encoding/binary"

const (
	ErrFailedBatchCommit = "failed to commit batch: %w"
)

// Prefix constants for all store types
const (
	prefixMeta byte = iota + 1
	prefixTicker
	prefixSeeds
	prefixQueue
	prefixProviders
	prefixScheduler
	prefixLedger
	prefixSweeper
	prefixEvent
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixMeta:
		return "meta"
	case prefixTicker:
		return "ticker"
	case prefixSeeds:
		return "seeds"
	case prefixQueue:
		return "queue"
	case prefixProviders:
		return "providers"
	case prefixScheduler:
		return "scheduler"
	case prefixLedger:
		return "ledger"
	case prefixSweeper:
		return "sweeper"
	case prefixEvent:
		return "event"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and suffix
func makeKey(prefix byte, suffix []byte) []byte {
	key := make([]byte, 1+len(suffix))
	key[0] = prefix
	copy(key[1:], suffix)
	return key
}

const eventKeyLen = 1 + 4 + 8 + 4

// eventKey orders journal entries by tick, then step, then emission order.
func eventKey(tick uint32, step uint64, seq uint32) []byte {
	suffix := make([]byte, 0, 16)
	suffix = binary.BigEndian.AppendUint32(suffix, tick)
	suffix = binary.BigEndian.AppendUint64(suffix, step)
	suffix = binary.BigEndian.AppendUint32(suffix, seq)
	return makeKey(prefixEvent, suffix)
}
