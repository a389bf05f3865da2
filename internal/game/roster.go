package game

import (
	"context"

	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/obslog"
)

type removeReason int

const (
	reasonLeftRoom removeReason = iota
	reasonUnreachable
	reasonKicked
)

// removalEvent captures everything the caller needs to announce a removal
// after releasing the session mutex.
type removalEvent struct {
	player         Player
	wasImposter    bool
	imposterPrompt string
}

// removeLocked takes a player off the roster and cascades: their answer and
// any votes cast by or for them are dropped, and if they were the imposter
// mid-round the round is forced to resolution. Completing the answer or vote
// set as a side effect wakes the round loop.
func (s *Session) removeLocked(id string) (removalEvent, bool) {
	idx := -1
	for i, p := range s.players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return removalEvent{}, false
	}
	ev := removalEvent{player: s.players[idx]}
	s.players = append(s.players[:idx], s.players[idx+1:]...)
	s.departed = append(s.departed, id)

	s.pruneRecordsLocked()

	if s.imposterID == id && (s.phase == PhaseAnswering || s.phase == PhaseVoting) {
		ev.wasImposter = true
		ev.imposterPrompt = s.imposterPrompt
		s.closeVotingLocked()
		s.forceRoundLocked()
	}

	if len(s.players) > 0 {
		if s.phase == PhaseAnswering && len(s.answers) == len(s.players) {
			signal(s.answersDone)
		}
		if s.phase == PhaseVoting && s.votingOpen && len(s.votes) == len(s.players) {
			s.votingOpen = false
			signal(s.votesDone)
		}
	}
	return ev, true
}

// announceRemovals broadcasts each removal and, for a departed imposter, the
// identity reveal with the true prompt. Must be called without mu held.
func (s *Session) announceRemovals(ctx context.Context, events []removalEvent, reason removeReason) {
	for _, ev := range events {
		var text string
		switch reason {
		case reasonUnreachable:
			text = s.fmtr.RemovedUnreachable(ev.player.Name)
		case reasonKicked:
			text = s.fmtr.RemovedByHost(ev.player.Name)
		default:
			text = s.fmtr.RemovedLeftRoom(ev.player.Name)
		}
		s.broadcast(ctx, text)
		if ev.wasImposter {
			s.broadcast(ctx, s.fmtr.ImposterDeparted(ev.player.Name, ev.imposterPrompt))
		}
		obslog.L().Info("player_removed",
			zap.String("session_id", s.ID),
			zap.String("user_id", ev.player.ID),
			zap.Int("reason", int(reason)),
			zap.Bool("was_imposter", ev.wasImposter),
		)
	}
}

// removePlayers removes a batch, announces, and reports whether the quorum
// broke mid-game. The caller decides how to end.
func (s *Session) removePlayers(ctx context.Context, ids []string, reason removeReason) bool {
	var events []removalEvent
	s.mu.Lock()
	for _, id := range ids {
		if ev, ok := s.removeLocked(id); ok {
			events = append(events, ev)
		}
	}
	quorumLost := s.started && s.phase != PhaseEnded && len(s.players) < Quorum
	s.mu.Unlock()
	s.announceRemovals(ctx, events, reason)
	return quorumLost
}

// HandleDeparture reacts to a leave or kick feed event from the room. Non
// players are ignored.
func (s *Session) HandleDeparture(ctx context.Context, userID string) {
	s.mu.Lock()
	if s.phase == PhaseEnded || !s.isPlayerLocked(userID) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if s.removePlayers(ctx, []string{userID}, reasonLeftRoom) {
		s.endEarly(ctx, endReasonQuorum)
	}
}
