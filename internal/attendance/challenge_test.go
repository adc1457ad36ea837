package attendance

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestNewChallengeWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, id := range []string{"7", "12", "1712345678", "0102030405060"} {
		n := len(id)
		for i := 0; i < 500; i++ {
			c, err := NewChallenge(id, rng)
			if err != nil {
				t.Fatalf("new challenge for %q: %v", id, err)
			}
			if c.PositionA < 1 || c.PositionA > n || c.PositionB < 1 || c.PositionB > n {
				t.Fatalf("positions %+v outside [1,%d]", c, n)
			}
		}
	}
}

func TestNewChallengeSingleCharacter(t *testing.T) {
	c, err := NewChallenge("9", nil)
	if err != nil {
		t.Fatalf("new challenge: %v", err)
	}
	if c.PositionA != 1 || c.PositionB != 1 {
		t.Fatalf("expected both positions 1, got %+v", c)
	}
	if err := Verify("9", c, "9", "9"); err != nil {
		t.Fatalf("degenerate challenge should verify: %v", err)
	}
}

func TestNewChallengeEmptyID(t *testing.T) {
	_, err := NewChallenge("", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifyExample(t *testing.T) {
	c := Challenge{PositionA: 3, PositionB: 8}
	if err := Verify("1712345678", c, "2", "6"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
}

func TestVerifyMismatchCarriesExpected(t *testing.T) {
	c := Challenge{PositionA: 3, PositionB: 8}
	cases := [][2]string{{"1", "6"}, {"2", "5"}, {"", ""}, {"22", "6"}}
	for _, in := range cases {
		err := Verify("1712345678", c, in[0], in[1])
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("input %v: expected validation error, got %v", in, err)
		}
		if len(verr.Expected) != 2 || verr.Expected[0] != (ExpectedChar{3, "2"}) || verr.Expected[1] != (ExpectedChar{8, "6"}) {
			t.Fatalf("input %v: unexpected expected chars %+v", in, verr.Expected)
		}
	}
}

func TestVerifyIsCaseSensitive(t *testing.T) {
	c := Challenge{PositionA: 1, PositionB: 2}
	if err := Verify("Ab", c, "a", "b"); err == nil {
		t.Fatalf("expected case-sensitive mismatch")
	}
	if err := Verify("Ab", c, "A", "b"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
}

func TestVerifyAcceptsIffBothMatch(t *testing.T) {
	id := "0987654321"
	rng := rand.New(rand.NewPCG(7, 7))
	digits := "0123456789"
	for i := 0; i < 300; i++ {
		c, err := NewChallenge(id, rng)
		if err != nil {
			t.Fatalf("new challenge: %v", err)
		}
		first := string(digits[rng.IntN(10)])
		second := string(digits[rng.IntN(10)])
		want := first == string(id[c.PositionA-1]) && second == string(id[c.PositionB-1])
		got := Verify(id, c, first, second) == nil
		if got != want {
			t.Fatalf("challenge %+v input %s%s: got accept=%v want %v", c, first, second, got, want)
		}
	}
}

func TestVerifyRejectsOutOfRangePositions(t *testing.T) {
	if err := Verify("123", Challenge{PositionA: 0, PositionB: 1}, "1", "1"); err == nil {
		t.Fatalf("expected error for zero position")
	}
	if err := Verify("123", Challenge{PositionA: 1, PositionB: 4}, "1", "1"); err == nil {
		t.Fatalf("expected error for position past the end")
	}
}
