// Package display renders session counters the way the board shows them:
// a pluralized move label and a star string for the rating.
package display

import (
	"strings"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/robalobadob/concentration/internal/game"
)

const movesKey = "%d Moves"

// Supported lists the catalog locales; the first is the fallback.
var Supported = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var (
	matcher = language.NewMatcher(Supported)
	labels  = mustCatalog()
)

func mustCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(Supported[0]))
	set := func(tag language.Tag, one, other string) {
		if err := b.Set(tag, movesKey, plural.Selectf(1, "%d", "=1", one, "other", other)); err != nil {
			panic("display: " + err.Error())
		}
	}
	set(language.AmericanEnglish, "%[1]d Move", "%[1]d Moves")
	set(language.BrazilianPortuguese, "%[1]d Jogada", "%[1]d Jogadas")
	return b
}

// Labels formats counters for one locale.
type Labels struct {
	tag language.Tag
	p   *message.Printer
}

// For picks the best supported locale for an Accept-Language header value.
// Empty or unparseable input falls back to American English.
func For(acceptLanguage string) Labels {
	tag := Supported[0]
	if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
		if _, idx, conf := matcher.Match(tags...); conf != language.No {
			tag = Supported[idx]
		}
	}
	return Labels{tag: tag, p: message.NewPrinter(tag, message.Catalog(labels))}
}

// Locale returns the BCP 47 tag in use.
func (l Labels) Locale() string { return l.tag.String() }

// Moves renders "1 Move" / "N Moves".
func (l Labels) Moves(n int) string { return l.p.Sprintf(movesKey, n) }

// Stars renders rating as filled stars padded with empty ones up to game.MaxRating.
func (l Labels) Stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > game.MaxRating {
		rating = game.MaxRating
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", game.MaxRating-rating)
}
