// Package daily derives the shared deck of the day: every player who starts
// a daily game on the same UTC date gets the same deal.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/robalobadob/concentration/internal/shuffle"
)

// ErrBadDate is returned by ParseDate for anything but YYYY-MM-DD.
var ErrBadDate = errors.New("daily: date must be YYYY-MM-DD")

const layout = "2006-01-02"

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format(layout)
}

// ParseDate validates a date key and returns it normalized.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", ErrBadDate
	}
	return DateKey(t), nil
}

// Seed is HMAC-SHA256(salt, YYYY-MM-DD). Without the salt the deal of a
// future date cannot be precomputed.
func Seed(date, salt string) [32]byte {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(date))
	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed
}

// Source returns a fresh deterministic shuffle source for date.
// Each call restarts the stream, so one Source deals exactly one deck.
func Source(date, salt string) shuffle.Source {
	return rand.New(rand.NewChaCha8(Seed(date, salt)))
}
