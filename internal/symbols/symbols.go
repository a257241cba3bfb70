// internal/symbols/symbols.go
//
// Symbol token management for the game engine.
//
// Responsibilities:
//   - Load the card face tokens from an override file or fall back to the
//     embedded defaults in assets/symbols.txt.
//   - Validate the set: exactly PairCount distinct tokens, each made of
//     lowercase letters, digits and dashes.
//
// File format:
//   One token per line. Blank lines and lines starting with '#' are skipped.

package symbols

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/concentration/assets"
)

// PairCount is the number of distinct tokens in a deck (two cards each).
const PairCount = 8

// ErrInvalidSet is returned when a token list does not form a valid deck.
var ErrInvalidSet = errors.New("symbols: invalid symbol set")

var (
	defaultOnce sync.Once
	defaultList []string
	defaultErr  error
)

// Default returns the embedded symbol set. It is loaded and validated once.
func Default() ([]string, error) {
	defaultOnce.Do(func() {
		list, err := assets.SymbolList()
		if err != nil {
			defaultErr = fmt.Errorf("read embedded symbols: %w", err)
			return
		}
		if err := Validate(list); err != nil {
			defaultErr = err
			return
		}
		defaultList = list
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return append([]string(nil), defaultList...), nil
}

// Load reads the symbol set from path, or returns Default when path is empty.
func Load(path string) ([]string, error) {
	if path == "" {
		return Default()
	}
	list, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(list); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// Validate checks that list holds exactly PairCount distinct, well-formed tokens.
func Validate(list []string) error {
	if len(list) != PairCount {
		return fmt.Errorf("%w: want %d tokens, got %d", ErrInvalidSet, PairCount, len(list))
	}
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		if !isToken(s) {
			return fmt.Errorf("%w: malformed token %q", ErrInvalidSet, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: duplicate token %q", ErrInvalidSet, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// readFile loads one token per line, skipping blanks and '#' comments.
func readFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// isToken reports whether s is non-empty and only [a-z0-9-].
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '-' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
