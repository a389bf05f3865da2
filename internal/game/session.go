package game

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/format"
	"github.com/Junith-K/guess-the-imposter/internal/obslog"
	"github.com/Junith-K/guess-the-imposter/internal/questions"
)

// Session owns all state for one game in one room. Every action is serialized
// through mu; the round loop goroutine is the only place that blocks, and it
// only blocks on channels, never while holding mu across a wait.
type Session struct {
	ID       string
	Room     string
	Host     Player
	Settings Settings

	messenger Messenger
	catalog   *questions.Catalog
	fmtr      *format.Formatter
	recorder  Recorder
	onRemove  func(room string)

	mu             sync.Mutex
	phase          Phase
	started        bool
	ending         bool
	players        []Player
	departed       []string
	names          map[string]string
	currentRound   int
	imposterID     string
	commonPrompt   string
	imposterPrompt string
	answers        map[string]string
	answerOrder    []string
	votes          map[string]string
	scores         map[string]int
	votingOpen     bool

	// per-round signals, recreated at the top of each round
	answersDone chan struct{}
	forcedCh    chan struct{}
	votesDone   chan struct{}
	forced      bool

	endCh   chan struct{}
	endOnce sync.Once

	// pacing knobs, shortened in tests
	resultsDelay   time.Duration
	nextRoundDelay time.Duration
	pollInterval   time.Duration
}

func newSession(room string, host Player, st Settings, deps Deps, onRemove func(string)) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Room:      room,
		Host:      host,
		Settings:  st,
		messenger: deps.Messenger,
		catalog:   deps.Catalog,
		fmtr:      deps.Formatter,
		recorder:  deps.Recorder,
		onRemove:  onRemove,

		phase:   PhaseLobby,
		names:   make(map[string]string),
		answers: make(map[string]string),
		votes:   make(map[string]string),
		scores:  make(map[string]int),
		endCh:   make(chan struct{}),

		resultsDelay:   2 * time.Second,
		nextRoundDelay: 3 * time.Second,
		pollInterval:   2 * time.Second,
	}
	s.names[host.ID] = host.Name
	return s
}

// Validate checks the configurable ranges. The front door calls this before
// construction; sessions assume valid settings.
func (st Settings) Validate() error {
	if st.Rounds < 1 || st.Rounds > 20 {
		return errf("rounds must be between 1 and 20")
	}
	if !st.NoVoteTimer && (st.DiscussionSeconds < 10 || st.DiscussionSeconds > 600) {
		return errf("timer must be between 10 and 600 seconds")
	}
	return nil
}

// OpenLobby announces the freshly created session in its room.
func (s *Session) OpenLobby(ctx context.Context) {
	s.broadcast(ctx, s.fmtr.LobbyOpened(s.Settings.Rounds, s.Settings.DiscussionSeconds, s.Settings.NoVoteTimer, s.Settings.AnonymousAnswers))
	obslog.L().Info("lobby_open",
		zap.String("session_id", s.ID),
		zap.String("room", s.Room),
		zap.String("host_id", s.Host.ID),
		zap.Int("rounds", s.Settings.Rounds),
	)
}

// Join adds a player during the lobby phase. The DM probe doubles as the
// welcome message; an unreachable player is rejected outright since prompt
// delivery would fail anyway.
func (s *Session) Join(ctx context.Context, p Player) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnded {
		return nil, ErrSessionInactive
	}
	if s.started || s.currentRound > 0 {
		return nil, ErrAlreadyStarted
	}
	if s.isPlayerLocked(p.ID) {
		return nil, ErrAlreadyJoined
	}
	if !s.messenger.IsRoomMember(ctx, s.Room, p.ID) {
		return nil, ErrNotRoomMember
	}
	if err := s.messenger.SendPrivateMessage(ctx, p.ID, s.fmtr.JoinDM()); err != nil {
		obslog.L().Warn("join_dm_failed", zap.String("session_id", s.ID), zap.String("user_id", p.ID), zap.Error(err))
		return nil, ErrUnreachable
	}
	s.players = append(s.players, p)
	s.names[p.ID] = p.Name
	s.broadcast(ctx, s.fmtr.PlayerJoined(p.Name, len(s.players)))
	obslog.L().Info("player_join", zap.String("session_id", s.ID), zap.String("user_id", p.ID), zap.Int("players", len(s.players)))
	return &ActionResult{}, nil
}

// Start begins round one. Only the host may start; absent players are pruned
// first and the quorum re-checked after pruning.
func (s *Session) Start(ctx context.Context, actorID string) (*ActionResult, error) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return nil, ErrSessionInactive
	}
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if actorID != s.Host.ID {
		s.mu.Unlock()
		return nil, ErrNotHost
	}
	if !s.messenger.IsRoomMember(ctx, s.Room, s.Host.ID) {
		s.mu.Unlock()
		s.endEarly(ctx, endReasonForced)
		return nil, ErrSessionInactive
	}

	var gone []string
	for _, p := range s.players {
		if !s.messenger.IsRoomMember(ctx, s.Room, p.ID) {
			gone = append(gone, p.ID)
		}
	}
	var events []removalEvent
	for _, id := range gone {
		if ev, ok := s.removeLocked(id); ok {
			events = append(events, ev)
		}
	}
	if len(s.players) < Quorum {
		s.mu.Unlock()
		s.announceRemovals(ctx, events, reasonLeftRoom)
		return nil, ErrNotEnoughPlayers
	}
	s.started = true
	s.mu.Unlock()

	s.announceRemovals(ctx, events, reasonLeftRoom)
	s.broadcast(ctx, s.fmtr.StartingGame())
	obslog.L().Info("game_start", zap.String("session_id", s.ID), zap.String("room", s.Room), zap.Int("players", s.playerCount()))
	go s.run(context.Background())
	return &ActionResult{}, nil
}

// SubmitAnswer records one player's answer for the current round. Completing
// the set triggers the reveal via the round loop.
func (s *Session) SubmitAnswer(ctx context.Context, actorID, text string) (*ActionResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyAnswer
	}
	if utf8.RuneCountInString(text) > MaxAnswerLen {
		return nil, ErrAnswerTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAnswering {
		return nil, ErrNoActiveRound
	}
	if !s.isPlayerLocked(actorID) {
		return nil, ErrNotPlayer
	}
	if _, ok := s.answers[actorID]; ok {
		return nil, ErrAlreadyAnswered
	}
	if !s.messenger.IsRoomMember(ctx, s.Room, actorID) {
		return nil, ErrNotRoomMember
	}

	s.answers[actorID] = text
	s.answerOrder = append(s.answerOrder, actorID)
	s.pruneRecordsLocked()
	if len(s.answers) == len(s.players) {
		signal(s.answersDone)
	}
	return &ActionResult{Text: "Answer submitted!", Private: true}, nil
}

// SubmitVote records one vote during the open voting window. The last vote
// closes the window and wakes the waiting timer.
func (s *Session) SubmitVote(ctx context.Context, actorID, targetID string) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.votingOpen {
		return nil, ErrVotingClosed
	}
	if !s.isPlayerLocked(actorID) {
		return nil, ErrNotPlayer
	}
	if !s.isPlayerLocked(targetID) {
		return nil, ErrInvalidTarget
	}
	if actorID == targetID {
		return nil, ErrSelfVote
	}
	if _, ok := s.votes[actorID]; ok {
		return nil, ErrAlreadyVoted
	}
	if !s.messenger.IsRoomMember(ctx, s.Room, actorID) {
		return nil, ErrNotRoomMember
	}
	if !s.messenger.IsRoomMember(ctx, s.Room, targetID) {
		return nil, ErrInvalidTarget
	}

	s.votes[actorID] = targetID
	s.pruneRecordsLocked()
	if len(s.votes) == len(s.players) {
		s.votingOpen = false
		signal(s.votesDone)
	}
	return &ActionResult{Text: "Vote for " + s.names[targetID] + " received!", Private: true}, nil
}

// ForceEndRound closes the current phase early. With a target it also removes
// that player first. Privileged to the host, or to any remaining player once
// the host has left the room.
func (s *Session) ForceEndRound(ctx context.Context, actorID, targetID string) (*ActionResult, error) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return nil, ErrSessionInactive
	}
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if !s.isPrivilegedLocked(ctx, actorID) {
		s.mu.Unlock()
		return nil, ErrNotHost
	}

	if targetID != "" {
		if !s.isPlayerLocked(targetID) {
			s.mu.Unlock()
			return nil, ErrNotPlayer
		}
		ev, _ := s.removeLocked(targetID)
		quorumLost := len(s.players) < Quorum
		s.mu.Unlock()
		s.announceRemovals(ctx, []removalEvent{ev}, reasonKicked)
		if quorumLost {
			s.endEarly(ctx, endReasonQuorum)
		}
		return &ActionResult{}, nil
	}

	if s.phase == PhaseResolving || s.forced {
		s.mu.Unlock()
		return &ActionResult{Text: "The round is already resolving.", Private: true}, nil
	}
	s.closeVotingLocked()
	s.forceRoundLocked()
	s.mu.Unlock()
	s.broadcast(ctx, s.fmtr.RoundForced())
	obslog.L().Info("round_forced", zap.String("session_id", s.ID), zap.String("actor_id", actorID))
	return &ActionResult{}, nil
}

// ForceEndGame terminates the session immediately, revealing whatever data
// exists. Same privilege rule as ForceEndRound.
func (s *Session) ForceEndGame(ctx context.Context, actorID string) (*ActionResult, error) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return nil, ErrSessionInactive
	}
	if !s.isPrivilegedLocked(ctx, actorID) {
		s.mu.Unlock()
		return nil, ErrNotHost
	}
	s.mu.Unlock()

	obslog.L().Info("game_force_end", zap.String("session_id", s.ID), zap.String("actor_id", actorID))
	s.endEarly(ctx, endReasonForced)
	return &ActionResult{}, nil
}

// Scoreboard returns the current score snapshot, highest first.
func (s *Session) Scoreboard() *ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scores) == 0 {
		return &ActionResult{Text: "No scores yet.", Private: true}
	}
	return &ActionResult{Text: s.fmtr.Scoreboard(s.scoreRowsLocked())}
}

// FindPlayer resolves a mention or raw id against the roster.
func (s *Session) FindPlayer(nameOrID string) (Player, bool) {
	nameOrID = strings.TrimPrefix(strings.TrimSpace(nameOrID), "@")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.ID == nameOrID || strings.EqualFold(p.Name, nameOrID) {
			return p, true
		}
	}
	return Player{}, false
}

// Phase reports the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Players returns a copy of the current roster in join order.
func (s *Session) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Player, len(s.players))
	copy(out, s.players)
	return out
}

// Scores returns a copy of the accumulated score map.
func (s *Session) Scores() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

// internal helpers

func (s *Session) isPlayerLocked(id string) bool {
	for _, p := range s.players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// isPrivilegedLocked: the host, or any remaining player once the host has
// left the room.
func (s *Session) isPrivilegedLocked(ctx context.Context, actorID string) bool {
	if actorID == s.Host.ID {
		return true
	}
	if !s.messenger.IsRoomMember(ctx, s.Room, s.Host.ID) {
		return s.isPlayerLocked(actorID)
	}
	return false
}

func (s *Session) closeVotingLocked() bool {
	if !s.votingOpen {
		return false
	}
	s.votingOpen = false
	return true
}

func (s *Session) forceRoundLocked() {
	if s.forced || s.forcedCh == nil {
		return
	}
	s.forced = true
	close(s.forcedCh)
}

// pruneRecordsLocked drops answers and votes referencing anyone who is no
// longer on the roster, keeping the domain-subset invariant before any
// completeness check.
func (s *Session) pruneRecordsLocked() {
	current := make(map[string]bool, len(s.players))
	for _, p := range s.players {
		current[p.ID] = true
	}
	for id := range s.answers {
		if !current[id] {
			delete(s.answers, id)
			s.answerOrder = removeString(s.answerOrder, id)
		}
	}
	for voter, target := range s.votes {
		if !current[voter] || !current[target] {
			delete(s.votes, voter)
		}
	}
}

func (s *Session) scoreRowsLocked() []format.ScoreRow {
	rows := make([]format.ScoreRow, 0, len(s.players)+len(s.departed))
	for _, p := range s.players {
		rows = append(rows, format.ScoreRow{Name: s.names[p.ID], Points: s.scores[p.ID]})
	}
	for _, id := range s.departed {
		if pts, ok := s.scores[id]; ok {
			rows = append(rows, format.ScoreRow{Name: s.names[id], Points: pts})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Points > rows[j].Points })
	return rows
}

// resultsLocked mirrors scoreRowsLocked: departed players keep their earned
// points, so they appear in the recorded results too.
func (s *Session) resultsLocked() []PlayerResult {
	ids := make([]string, 0, len(s.players)+len(s.departed))
	for _, p := range s.players {
		ids = append(ids, p.ID)
	}
	for _, id := range s.departed {
		if _, ok := s.scores[id]; ok {
			ids = append(ids, id)
		}
	}
	top := 0
	for _, id := range ids {
		if s.scores[id] > top {
			top = s.scores[id]
		}
	}
	results := make([]PlayerResult, 0, len(ids))
	for _, id := range ids {
		pts := s.scores[id]
		results = append(results, PlayerResult{
			ID:     id,
			Name:   s.names[id],
			Points: pts,
			Winner: top > 0 && pts == top,
		})
	}
	return results
}

func (s *Session) playerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Session) broadcast(ctx context.Context, text string) {
	if err := s.messenger.SendChannelMessage(ctx, s.Room, text); err != nil {
		obslog.L().Warn("broadcast_failed", zap.String("session_id", s.ID), zap.String("room", s.Room), zap.Error(err))
	}
}

func signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func removeString(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
