package game

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/format"
	"github.com/Junith-K/guess-the-imposter/internal/obslog"
)

type roundOutcome int

const (
	roundContinue roundOutcome = iota
	roundFinal
	roundQuorumLost
	roundAborted
)

type endReason int

const (
	endReasonQuorum endReason = iota
	endReasonForced
)

// run drives the session from the first round to the end. It is the only
// goroutine that sleeps; actions reach it through the per-round channels.
func (s *Session) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("round_loop_panic",
				zap.String("session_id", s.ID),
				zap.String("room", s.Room),
				zap.Any("panic", r),
			)
			s.broadcast(ctx, s.fmtr.UnexpectedFailure())
			s.finish()
		}
	}()

	for {
		switch s.playRound(ctx) {
		case roundContinue:
		case roundFinal:
			s.finishFinal(ctx)
			return
		case roundQuorumLost:
			s.endEarly(ctx, endReasonQuorum)
			return
		default:
			return
		}
	}
}

func (s *Session) playRound(ctx context.Context) roundOutcome {
	s.mu.Lock()
	if s.phase == PhaseEnded || s.ending {
		s.mu.Unlock()
		return roundAborted
	}
	s.currentRound++
	round := s.currentRound
	s.answers = make(map[string]string)
	s.answerOrder = nil
	s.votes = make(map[string]string)
	s.answersDone = make(chan struct{}, 1)
	s.votesDone = make(chan struct{}, 1)
	s.forcedCh = make(chan struct{})
	s.forced = false
	s.phase = PhaseAnswering
	roster := make([]Player, len(s.players))
	copy(roster, s.players)
	s.mu.Unlock()

	// drop anyone who left the room between rounds
	var gone []string
	for _, p := range roster {
		if !s.messenger.IsRoomMember(ctx, s.Room, p.ID) {
			gone = append(gone, p.ID)
		}
	}
	if len(gone) > 0 {
		if s.removePlayers(ctx, gone, reasonLeftRoom) {
			return roundQuorumLost
		}
	}

	s.mu.Lock()
	if len(s.players) < Quorum {
		s.mu.Unlock()
		return roundQuorumLost
	}
	pair := s.catalog.Draw()
	s.commonPrompt = pair.Normal
	s.imposterPrompt = pair.Imposter
	s.imposterID = s.players[rand.Intn(len(s.players))].ID
	imposterID := s.imposterID
	roster = make([]Player, len(s.players))
	copy(roster, s.players)
	answersDone, forcedCh := s.answersDone, s.forcedCh
	s.mu.Unlock()

	obslog.L().Info("round_start",
		zap.String("session_id", s.ID),
		zap.Int("round", round),
		zap.Int("players", len(roster)),
	)

	// each player gets their prompt privately; delivery failure means removal
	var unreachable []string
	for _, p := range roster {
		prompt := pair.Normal
		if p.ID == imposterID {
			prompt = pair.Imposter
		}
		if err := s.messenger.SendPrivateMessage(ctx, p.ID, s.fmtr.PromptDM(prompt)); err != nil {
			obslog.L().Warn("prompt_dm_failed", zap.String("session_id", s.ID), zap.String("user_id", p.ID), zap.Error(err))
			unreachable = append(unreachable, p.ID)
		}
	}
	if len(unreachable) > 0 {
		if s.removePlayers(ctx, unreachable, reasonUnreachable) {
			return roundQuorumLost
		}
	}

	s.broadcast(ctx, s.fmtr.RoundStart(round))

	select {
	case <-answersDone:
	case <-forcedCh:
	case <-s.endCh:
		return roundAborted
	}

	s.mu.Lock()
	entries := make([]format.AnswerEntry, 0, len(s.answerOrder))
	for _, id := range s.answerOrder {
		entries = append(entries, format.AnswerEntry{Name: s.names[id], Text: s.answers[id]})
	}
	anonymous := s.Settings.AnonymousAnswers
	common := s.commonPrompt
	s.mu.Unlock()

	s.broadcast(ctx, s.fmtr.AnswersReveal(entries, anonymous))
	s.broadcast(ctx, s.fmtr.CommonQuestion(common))

	if s.votingPhase(ctx) == roundAborted {
		return roundAborted
	}
	if s.resolveRound(ctx) == roundAborted {
		return roundAborted
	}

	s.mu.Lock()
	rows := s.scoreRowsLocked()
	quorumOK := len(s.players) >= Quorum
	final := s.currentRound >= s.Settings.Rounds
	next := s.currentRound + 1
	s.mu.Unlock()

	if !quorumOK {
		return roundQuorumLost
	}
	if final {
		return roundFinal
	}
	s.broadcast(ctx, s.fmtr.Scoreboard(rows))
	s.broadcast(ctx, s.fmtr.NextRound(next))
	if s.pause(s.nextRoundDelay) {
		return roundAborted
	}
	return roundContinue
}

// votingPhase opens the window, then waits for the full vote set, a force, or
// the deadline. With no timer configured the wait is unbounded; a slow ticker
// re-checks completeness in case a signal was lost to a roster change.
func (s *Session) votingPhase(ctx context.Context) roundOutcome {
	s.mu.Lock()
	if s.forced {
		s.mu.Unlock()
		return roundContinue
	}
	s.phase = PhaseVoting
	s.votingOpen = true
	votesDone, forcedCh := s.votesDone, s.forcedCh
	s.mu.Unlock()

	if s.Settings.NoVoteTimer {
		s.broadcast(ctx, s.fmtr.VotingOpenNoTimer())
		tick := time.NewTicker(s.pollInterval)
		defer tick.Stop()
		for {
			select {
			case <-votesDone:
				return roundContinue
			case <-forcedCh:
				return roundContinue
			case <-s.endCh:
				return roundAborted
			case <-tick.C:
				s.mu.Lock()
				done := len(s.players) > 0 && len(s.votes) >= len(s.players)
				if done {
					s.closeVotingLocked()
				}
				s.mu.Unlock()
				if done {
					return roundContinue
				}
			}
		}
	}

	total := s.Settings.DiscussionSeconds
	s.broadcast(ctx, s.fmtr.VotingOpen(total))
	deadline := time.Now().Add(time.Duration(total) * time.Second)
	interval := reminderInterval(total)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-votesDone:
			t.Stop()
			// the countdown announcement still closes the window
			s.broadcast(ctx, s.fmtr.VotingClosed())
			return roundContinue
		case <-forcedCh:
			t.Stop()
			return roundContinue
		case <-s.endCh:
			t.Stop()
			return roundAborted
		case <-t.C:
			left := int(time.Until(deadline).Round(time.Second) / time.Second)
			if left > 0 {
				s.broadcast(ctx, s.fmtr.Reminder(left))
			}
		}
	}

	s.mu.Lock()
	s.closeVotingLocked()
	s.mu.Unlock()
	s.broadcast(ctx, s.fmtr.VotingClosed())
	return roundContinue
}

// reminderInterval mirrors the pacing of the voting countdown: quarter-ish
// reminders for short timers, a fixed 15s cadence for long ones.
func reminderInterval(totalSeconds int) time.Duration {
	if totalSeconds > 30 {
		return 15 * time.Second
	}
	sec := totalSeconds / 3
	if sec < 5 {
		sec = 5
	}
	return time.Duration(sec) * time.Second
}

func (s *Session) resolveRound(ctx context.Context) roundOutcome {
	s.mu.Lock()
	s.phase = PhaseResolving
	s.closeVotingLocked()
	s.pruneRecordsLocked()
	votes := make(map[string]string, len(s.votes))
	for k, v := range s.votes {
		votes[k] = v
	}
	playerIDs := make([]string, len(s.players))
	for i, p := range s.players {
		playerIDs[i] = p.ID
	}
	imposterID := s.imposterID
	imposterName := s.names[imposterID]
	imposterPrompt := s.imposterPrompt
	s.mu.Unlock()

	res := ScoreRound(votes, imposterID, playerIDs)

	s.mu.Lock()
	for id, d := range res.Deltas {
		s.scores[id] += d
	}
	s.mu.Unlock()

	switch res.Outcome {
	case OutcomeTie:
		s.broadcast(ctx, s.fmtr.TieResult())
	case OutcomeNoVotes:
		s.broadcast(ctx, s.fmtr.NoVotesResult())
	}
	if imposterID != "" {
		s.broadcast(ctx, s.fmtr.ImposterReveal(imposterName))
		s.broadcast(ctx, s.fmtr.ImposterPrompt(imposterPrompt))
	} else {
		s.broadcast(ctx, s.fmtr.ImposterUnknown())
	}
	switch res.Outcome {
	case OutcomeCaught:
		s.broadcast(ctx, s.fmtr.Caught())
	case OutcomeEvaded:
		s.broadcast(ctx, s.fmtr.Evaded())
	}

	obslog.L().Info("round_resolved",
		zap.String("session_id", s.ID),
		zap.Int("round", s.currentRound),
		zap.Int("outcome", int(res.Outcome)),
		zap.Int("votes", len(votes)),
	)

	if s.pause(s.resultsDelay) {
		return roundAborted
	}
	return roundContinue
}

func (s *Session) finishFinal(ctx context.Context) {
	if !s.beginEnding() {
		return
	}
	s.mu.Lock()
	rows := s.scoreRowsLocked()
	s.mu.Unlock()

	s.broadcast(ctx, s.fmtr.FinalStandings(rows))
	if len(rows) > 0 && rows[0].Points > 0 {
		top := rows[0].Points
		var winners []string
		for _, r := range rows {
			if r.Points == top {
				winners = append(winners, r.Name)
			}
		}
		s.broadcast(ctx, s.fmtr.Winner(winners, top))
	}
	obslog.L().Info("game_complete", zap.String("session_id", s.ID), zap.String("room", s.Room), zap.Int("rounds", s.Settings.Rounds))
	s.finish()
}

// endEarly reveals whatever round data exists, with graceful degradation for
// the pieces that were never populated, then finalizes.
func (s *Session) endEarly(ctx context.Context, reason endReason) {
	if !s.beginEnding() {
		return
	}
	s.mu.Lock()
	common, imposter := s.commonPrompt, s.imposterPrompt
	imposterName := s.names[s.imposterID]
	rows := s.scoreRowsLocked()
	s.mu.Unlock()

	if reason == endReasonQuorum {
		s.broadcast(ctx, s.fmtr.EarlyEndQuorum())
	} else {
		s.broadcast(ctx, s.fmtr.EarlyEndForced())
	}
	if common != "" && imposter != "" {
		s.broadcast(ctx, s.fmtr.EarlyEndQuestions(common, imposter))
	} else {
		s.broadcast(ctx, s.fmtr.EarlyEndNoQuestions())
	}
	if len(rows) > 0 {
		s.broadcast(ctx, s.fmtr.FinalStandings(rows))
	} else {
		s.broadcast(ctx, s.fmtr.NoScoreData())
	}
	if imposterName != "" {
		s.broadcast(ctx, s.fmtr.ImposterReveal(imposterName))
	} else {
		s.broadcast(ctx, s.fmtr.ImposterUnknown())
	}
	s.finish()
}

// beginEnding claims the single shot at the end-of-game broadcasts.
func (s *Session) beginEnding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ending {
		return false
	}
	s.ending = true
	return true
}

// finish moves the session to ENDED exactly once: closes the end channel so
// every wait unblocks, hands the results to the recorder, and removes the
// session from its registry.
func (s *Session) finish() {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseEnded
		s.votingOpen = false
		rounds := s.currentRound
		results := s.resultsLocked()
		s.mu.Unlock()
		close(s.endCh)

		if s.recorder != nil && rounds > 0 && len(results) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.recorder.RecordSession(ctx, s.Room, rounds, results); err != nil {
				obslog.L().Warn("stats_record_failed", zap.String("session_id", s.ID), zap.Error(err))
			}
		}
		if s.onRemove != nil {
			s.onRemove(s.Room)
		}
		obslog.L().Info("session_end", zap.String("session_id", s.ID), zap.String("room", s.Room), zap.Int("rounds_played", rounds))
	})
}

func (s *Session) pause(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.endCh:
		return true
	case <-t.C:
		return false
	}
}
