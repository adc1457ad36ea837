package attendance

import (
	"math/rand/v2"
)

// Challenge holds two 1-based character positions within a national ID.
// The zero value means no challenge has been drawn.
type Challenge struct {
	PositionA int `json:"position_a"`
	PositionB int `json:"position_b"`
}

// IsZero reports whether no challenge has been drawn.
func (c Challenge) IsZero() bool {
	return c.PositionA == 0 && c.PositionB == 0
}

// NewChallenge draws two positions, each independently uniform over
// [1, len(nationalID)]. The positions may coincide.
func NewChallenge(nationalID string, rng *rand.Rand) (Challenge, error) {
	n := len([]rune(nationalID))
	if n == 0 {
		return Challenge{}, Invalid("identity has no national ID")
	}
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	return Challenge{PositionA: intN(n) + 1, PositionB: intN(n) + 1}, nil
}

// Expected returns the characters of nationalID at the challenge positions.
func (c Challenge) Expected(nationalID string) ([]ExpectedChar, error) {
	runes := []rune(nationalID)
	out := make([]ExpectedChar, 0, 2)
	for _, pos := range []int{c.PositionA, c.PositionB} {
		if pos < 1 || pos > len(runes) {
			return nil, Invalid("challenge position %d is outside the national ID", pos)
		}
		out = append(out, ExpectedChar{Position: pos, Char: string(runes[pos-1])})
	}
	return out, nil
}

// Verify accepts iff first and second equal the characters of nationalID at
// the challenge positions. A mismatch returns a ValidationError carrying the
// expected characters.
func Verify(nationalID string, c Challenge, first, second string) error {
	expected, err := c.Expected(nationalID)
	if err != nil {
		return err
	}
	if first != expected[0].Char || second != expected[1].Char {
		return &ValidationError{
			Reason:   "the digits entered do not match your national ID",
			Expected: expected,
		}
	}
	return nil
}
