package game

import "context"

// Phase is the session lifecycle state. It only moves forward, except for the
// answering → voting → resolving cycle repeated once per round.
type Phase string

const (
	PhaseLobby     Phase = "LOBBY"
	PhaseAnswering Phase = "ANSWERING"
	PhaseVoting    Phase = "VOTING"
	PhaseResolving Phase = "RESOLVING"
	PhaseEnded     Phase = "ENDED"
)

// Quorum is the minimum player count required to start or continue a session.
const Quorum = 3

// MaxAnswerLen bounds a submitted answer after trimming.
const MaxAnswerLen = 500

// Player is a chat identity participating in a session. The ID is the stable
// key; Name is only for display.
type Player struct {
	ID   string
	Name string
}

// Settings are fixed at session creation. Callers validate ranges before
// construction; the session assumes valid input.
type Settings struct {
	Rounds            int
	DiscussionSeconds int
	NoVoteTimer       bool
	AnonymousAnswers  bool
}

// ActionResult is the user-facing outcome of a session action. Private results
// should be relayed to the actor directly rather than broadcast.
type ActionResult struct {
	Text    string
	Private bool
}

// Messenger is the chat-platform surface the game relies on. Broadcast errors
// are ignorable; private-message errors signal unreachable users and drive
// removal; membership probes must reflect live state.
type Messenger interface {
	SendChannelMessage(ctx context.Context, room, text string) error
	SendPrivateMessage(ctx context.Context, userID, text string) error
	IsRoomMember(ctx context.Context, room, userID string) bool
}

// PlayerResult is one player's final line for the optional stats recorder.
type PlayerResult struct {
	ID     string
	Name   string
	Points int
	Winner bool
}

// Recorder receives final standings of finished sessions. Best effort: errors
// are logged, never surfaced to players.
type Recorder interface {
	RecordSession(ctx context.Context, room string, rounds int, results []PlayerResult) error
}

// Rejection reasons. These double as the user-visible text for InvalidAction
// outcomes, so the front door can relay err.Error() directly.
var (
	ErrSessionInactive  = errf("the game is no longer active")
	ErrAlreadyStarted   = errf("the game has already started")
	ErrNotStarted       = errf("the game hasn't started yet")
	ErrAlreadyJoined    = errf("you've already joined the game")
	ErrNotRoomMember    = errf("you must be a member of this room")
	ErrUnreachable      = errf("you could not be messaged privately; enable direct messages and try again")
	ErrNotHost          = errf("only the host can do that")
	ErrNotEnoughPlayers = errf("at least 3 players are required to start")
	ErrNotPlayer        = errf("you're not part of this game")
	ErrNoActiveRound    = errf("no round is in progress")
	ErrAlreadyAnswered  = errf("you've already submitted an answer")
	ErrEmptyAnswer      = errf("your answer can't be empty")
	ErrAnswerTooLong    = errf("your answer is too long (500 characters max)")
	ErrVotingClosed     = errf("voting is currently closed; you can only vote during the discussion period")
	ErrAlreadyVoted     = errf("you already voted")
	ErrSelfVote         = errf("you can't vote for yourself")
	ErrInvalidTarget    = errf("invalid vote")
	ErrSessionExists    = errf("a game is already active in this room")
	ErrNoSession        = errf("no game is currently running; use startgame first")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
