package game

// MaxRating is the rating at the start of every round.
const MaxRating = 3

// Rating maps a move count to 1–3 stars: fewer than 10 moves is 3,
// fewer than 20 is 2, anything else is 1. Non-increasing in moves.
func Rating(moves int) int {
	switch {
	case moves < 10:
		return 3
	case moves < 20:
		return 2
	default:
		return 1
	}
}
