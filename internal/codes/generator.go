// Package codes produces short redemption codes.
package codes

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stampcard-backend/pkg/security"
)

// TakenFunc reports whether candidate collides with a currently active code.
type TakenFunc func(ctx context.Context, candidate string) (bool, error)

// Random returns one candidate drawn from alphabet.
func Random(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}
	return security.RandomString(length, []rune(alphabet))
}

// Generate draws candidates until taken reports no active collision. There is
// no attempt cap; cancel ctx to give up.
func Generate(ctx context.Context, length int, alphabet string, taken TakenFunc) (string, error) {
	if taken == nil {
		return "", fmt.Errorf("collision check is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := Random(length, alphabet)
		if err != nil {
			return "", err
		}
		collides, err := taken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check code collision: %w", err)
		}
		if !collides {
			return candidate, nil
		}
	}
}
