package codes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRetriesOnCollision(t *testing.T) {
	calls := 0
	code, err := Generate(context.Background(), 6, "0123456789", func(_ context.Context, candidate string) (bool, error) {
		calls++
		return calls < 4, nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
	require.Len(t, code, 6)
	require.Empty(t, strings.Trim(code, "0123456789"))
}

func TestGeneratePropagatesCheckError(t *testing.T) {
	_, err := Generate(context.Background(), 6, "0123456789", func(context.Context, string) (bool, error) {
		return false, errors.New("db down")
	})
	require.ErrorContains(t, err, "db down")
}

func TestGenerateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Generate(ctx, 2, "ab", func(context.Context, string) (bool, error) {
		calls++
		if calls == 10 {
			cancel()
		}
		return true, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateValidatesInput(t *testing.T) {
	_, err := Generate(context.Background(), 0, "0123456789", func(context.Context, string) (bool, error) { return false, nil })
	require.Error(t, err)
	_, err = Generate(context.Background(), 4, "x", func(context.Context, string) (bool, error) { return false, nil })
	require.Error(t, err)
	_, err = Generate(context.Background(), 4, "xy", nil)
	require.Error(t, err)
}

func TestRandomSpreadsAcrossAlphabet(t *testing.T) {
	seen := map[rune]bool{}
	for i := 0; i < 200; i++ {
		code, err := Random(4, "abcd")
		require.NoError(t, err)
		for _, r := range code {
			seen[r] = true
		}
	}
	require.Len(t, seen, 4)
}
