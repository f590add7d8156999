package invariant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicf(t *testing.T) {
	assert.PanicsWithError(t, "invariant violated in seed: missing seed for tick 7", func() {
		Panicf("seed", "missing seed for tick %d", 7)
	})
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Panicf("proof", "boom")
		return nil
	}

	err := run()
	require.Error(t, err)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "proof", v.Component)

	assert.PanicsWithValue(t, "other", func() {
		var err error
		defer Recover(&err)
		panic("other")
	})
}
