package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown event kind")

// ParseKind maps an event name such as "proof_accepted" to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Encode returns the JSON body of e. The kind travels separately.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a body produced by Encode for an event of kind k.
func Decode(k Kind, data []byte) (Event, error) {
	var (
		e   Event
		err error
	)
	switch k {
	case KindNewChallenge:
		e, err = decodeAs[NewChallenge](data)
	case KindNewChallengeSeed:
		e, err = decodeAs[NewChallengeSeed](data)
	case KindNewCheckpointChallenge:
		e, err = decodeAs[NewCheckpointChallenge](data)
	case KindProofAccepted:
		e, err = decodeAs[ProofAccepted](data)
	case KindSlashableProvider:
		e, err = decodeAs[SlashableProvider](data)
	case KindMutationsApplied:
		e, err = decodeAs[MutationsApplied](data)
	case KindChallengesTickerSet:
		e, err = decodeAs[ChallengesTickerSet](data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", k, err)
	}
	return e, nil
}

func decodeAs[T Event](data []byte) (T, error) {
	var e T
	err := json.Unmarshal(data, &e)
	return e, err
}
