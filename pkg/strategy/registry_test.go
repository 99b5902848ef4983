package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStrategy_RecognizesNames(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"round-robin":      "round-robin",
		"rr":               "round-robin",
		"fastest-endpoint": "fastest-endpoint",
		"fastest":          "fastest-endpoint",
		"smallest-eta":     "smallest-eta",
		"eta":              "smallest-eta",
		"  SMALLEST-ETA  ": "smallest-eta",
	}

	for name, wantVariant := range cases {
		s, err := New(name, abcEndpoints(), zeroPredictors(), DefaultLatencyConst)
		require.NoError(t, err, "name=%q", name)
		assert.Equal(t, wantVariant, s.Name(), "name=%q", name)
	}
}

func TestNewStrategy_UnknownNameIsError(t *testing.T) {
	t.Parallel()

	_, err := New("bogus", abcEndpoints(), zeroPredictors(), DefaultLatencyConst)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
