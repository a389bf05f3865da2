package game

// VoteOutcome classifies the resolution of a round's vote.
type VoteOutcome int

const (
	// OutcomeNoVotes: nobody voted; counts as an evasion.
	OutcomeNoVotes VoteOutcome = iota
	// OutcomeTie: the top vote count is shared; the imposter escapes by
	// default even when the tie includes the imposter.
	OutcomeTie
	// OutcomeCaught: a unique accused exists and it is the imposter.
	OutcomeCaught
	// OutcomeEvaded: a unique accused exists but it is not the imposter.
	OutcomeEvaded
)

const (
	pointsEvasion     = 2
	pointsCorrectVote = 1
)

// RoundResult is the pure output of scoring one round.
type RoundResult struct {
	Outcome   VoteOutcome
	AccusedID string         // set only for OutcomeCaught / OutcomeEvaded
	Tally     map[string]int // votes per target
	Deltas    map[string]int // points awarded this round per player
}

// ScoreRound computes point awards from the vote map, the imposter identity
// and the current player set. The imposter reference is weak: evasion points
// are awarded only while the imposter is still a current player. No I/O, no
// session state.
func ScoreRound(votes map[string]string, imposterID string, playerIDs []string) RoundResult {
	present := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		present[id] = true
	}

	res := RoundResult{
		Tally:  make(map[string]int),
		Deltas: make(map[string]int),
	}
	for _, target := range votes {
		res.Tally[target]++
	}

	if len(res.Tally) == 0 {
		res.Outcome = OutcomeNoVotes
		if present[imposterID] {
			res.Deltas[imposterID] = pointsEvasion
		}
		return res
	}

	max := 0
	for _, n := range res.Tally {
		if n > max {
			max = n
		}
	}
	var accused []string
	for id, n := range res.Tally {
		if n == max {
			accused = append(accused, id)
		}
	}

	if len(accused) > 1 {
		res.Outcome = OutcomeTie
		if present[imposterID] {
			res.Deltas[imposterID] = pointsEvasion
		}
		return res
	}

	res.AccusedID = accused[0]
	if res.AccusedID == imposterID {
		res.Outcome = OutcomeCaught
		for voter, target := range votes {
			if target == imposterID && voter != imposterID {
				res.Deltas[voter] += pointsCorrectVote
			}
		}
		return res
	}

	res.Outcome = OutcomeEvaded
	if present[imposterID] {
		res.Deltas[imposterID] = pointsEvasion
	}
	return res
}
