package ranking

// VoteDelta returns the (votedCount, downvotedCount) adjustment for a vote
// whose polarity moves from old to new. Polarities are tri-state: nil means
// the user has not voted, true an upvote, false a downvote.
//
// The full transition table:
//
//	nil   -> true  : (+1,  0)
//	nil   -> false : ( 0, +1)
//	true  -> false : (-1, +1)
//	false -> true  : (+1, -1)
//	true  -> nil   : (-1,  0)
//	false -> nil   : ( 0, -1)
//	same  -> same  : ( 0,  0)
func VoteDelta(old, new *bool) (dVoted, dDownvoted int) {
	if samePolarity(old, new) {
		return 0, 0
	}

	if old != nil {
		if *old {
			dVoted--
		} else {
			dDownvoted--
		}
	}

	if new != nil {
		if *new {
			dVoted++
		} else {
			dDownvoted++
		}
	}

	return dVoted, dDownvoted
}

// PopularityDelta is the net score change a vote transition applies to the
// post's entry in ranked sets: popularity = voted - downvoted.
func PopularityDelta(old, new *bool) float64 {
	dV, dD := VoteDelta(old, new)
	return float64(dV - dD)
}

func samePolarity(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
