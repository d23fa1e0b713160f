package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homehub/core/internal/model"
)

func TestLatestLogIDReturnsMostRecentNotOldest(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)

	// Write more rows than LogsSince's page cap so the two queries
	// diverge if LatestLogID were implemented as "oldest page, max id".
	for i := 0; i < logPageOverCap; i++ {
		require.NoError(t, s.AppendLog(&model.SystemLog{Level: model.LevelInfo, Source: "TEST", Message: "tick"}))
	}

	last, err := s.LatestLogID(0, true)
	require.NoError(t, err)
	require.EqualValues(t, logPageOverCap, last)
}

func TestLatestLogIDZeroWhenEmpty(t *testing.T) {
	s, err := OpenMemory()
	require.NoError(t, err)

	last, err := s.LatestLogID(0, true)
	require.NoError(t, err)
	require.EqualValues(t, 0, last)
}

const logPageOverCap = 205
