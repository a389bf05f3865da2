package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Junith-K/guess-the-imposter/internal/format"
	"github.com/Junith-K/guess-the-imposter/internal/questions"
)

// fakeMessenger records traffic in memory. Membership and DM delivery are
// controllable per user so tests can simulate departures and closed DMs.
type fakeMessenger struct {
	mu      sync.Mutex
	channel []string
	direct  map[string][]string
	absent  map[string]bool
	dmFail  map[string]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		direct: make(map[string][]string),
		absent: make(map[string]bool),
		dmFail: make(map[string]bool),
	}
}

func (f *fakeMessenger) SendChannelMessage(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = append(f.channel, text)
	return nil
}

func (f *fakeMessenger) SendPrivateMessage(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dmFail[userID] {
		return errors.New("dm closed")
	}
	f.direct[userID] = append(f.direct[userID], text)
	return nil
}

func (f *fakeMessenger) IsRoomMember(_ context.Context, _, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.absent[userID]
}

func (f *fakeMessenger) setAbsent(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.absent[userID] = true
}

func (f *fakeMessenger) setDMFail(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmFail[userID] = true
}

func (f *fakeMessenger) broadcastContains(sub string) bool {
	return f.broadcastCount(sub) > 0
}

func (f *fakeMessenger) broadcastCount(sub string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.channel {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

func (f *fakeMessenger) lastDirect(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.direct[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (f *fakeMessenger) directCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.direct[userID])
}

var testNames = []string{"Alice", "Bob", "Carol", "Dave", "Eve"}

func newTestGame(t *testing.T, st Settings, players int) (*Registry, *Session, *fakeMessenger) {
	t.Helper()
	fm := newFakeMessenger()
	cat, err := questions.New("")
	if err != nil {
		t.Fatalf("questions.New: %v", err)
	}
	reg := NewRegistry(Deps{Messenger: fm, Catalog: cat, Formatter: format.New("/")})
	s, err := reg.Create("room1", Player{ID: "u1", Name: "Alice"}, st)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.resultsDelay = time.Millisecond
	s.nextRoundDelay = time.Millisecond
	s.pollInterval = 10 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < players; i++ {
		p := Player{ID: fmt.Sprintf("u%d", i+1), Name: testNames[i]}
		if _, err := s.Join(ctx, p); err != nil {
			t.Fatalf("Join %s: %v", p.ID, err)
		}
	}
	return reg, s, fm
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (s *Session) testImposter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imposterID
}

func (s *Session) testVotingOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votingOpen
}

func startGame(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.Start(context.Background(), s.Host.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "answering phase", func() bool { return s.Phase() == PhaseAnswering })
}

func submitAllAnswers(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	for _, p := range s.Players() {
		if _, err := s.SubmitAnswer(ctx, p.ID, "answer from "+p.Name); err != nil {
			t.Fatalf("SubmitAnswer %s: %v", p.ID, err)
		}
	}
	waitFor(t, "voting to open", s.testVotingOpen)
}

func TestFullRoundImposterCaught(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	ctx := context.Background()

	startGame(t, s)
	submitAllAnswers(t, s)

	imp := s.testImposter()
	if imp == "" {
		t.Fatalf("no imposter assigned")
	}
	var other string
	for _, p := range s.Players() {
		if p.ID != imp {
			other = p.ID
			break
		}
	}
	for _, p := range s.Players() {
		target := imp
		if p.ID == imp {
			target = other
		}
		if _, err := s.SubmitVote(ctx, p.ID, target); err != nil {
			t.Fatalf("SubmitVote %s: %v", p.ID, err)
		}
	}

	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if s.Phase() != PhaseEnded {
		t.Fatalf("phase = %v, want ended", s.Phase())
	}
	scores := s.Scores()
	if scores[imp] != 0 {
		t.Fatalf("caught imposter score = %d, want 0", scores[imp])
	}
	for _, p := range s.Players() {
		if p.ID != imp && scores[p.ID] != 1 {
			t.Fatalf("voter %s score = %d, want 1", p.ID, scores[p.ID])
		}
	}
	if !fm.broadcastContains("The imposter was caught") {
		t.Fatalf("missing caught broadcast; got %v", fm.channel)
	}
	if !fm.broadcastContains("Final Scores") {
		t.Fatalf("missing final standings broadcast")
	}
}

func TestTimerExpiryNoVotesAwardsEvasion(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, DiscussionSeconds: 10}, 3)
	s.Settings.DiscussionSeconds = 1 // shortened deadline, set after validation
	startGame(t, s)
	submitAllAnswers(t, s)

	imp := s.testImposter()
	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if got := s.Scores()[imp]; got != 2 {
		t.Fatalf("imposter score = %d, want 2 after silent round", got)
	}
	if !fm.broadcastContains("No votes were cast") {
		t.Fatalf("missing no-votes broadcast")
	}
	if !fm.broadcastContains("Time's up") {
		t.Fatalf("missing voting-closed broadcast")
	}
}

func TestTieLetsImposterEscape(t *testing.T) {
	reg, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 4)
	ctx := context.Background()
	startGame(t, s)
	submitAllAnswers(t, s)

	// u1↔u2 and u3↔u4: every target holds exactly one vote
	pairs := [][2]string{{"u1", "u2"}, {"u2", "u1"}, {"u3", "u4"}, {"u4", "u3"}}
	imp := s.testImposter()
	for _, pv := range pairs {
		if _, err := s.SubmitVote(ctx, pv[0], pv[1]); err != nil {
			t.Fatalf("SubmitVote %s: %v", pv[0], err)
		}
	}

	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if got := s.Scores()[imp]; got != 2 {
		t.Fatalf("imposter score = %d, want 2 on tie", got)
	}
}

func TestMultipleRoundsAdvance(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 2, NoVoteTimer: true}, 3)
	ctx := context.Background()
	startGame(t, s)

	for round := 1; round <= 2; round++ {
		submitAllAnswers(t, s)
		imp := s.testImposter()
		var other string
		for _, p := range s.Players() {
			if p.ID != imp {
				other = p.ID
				break
			}
		}
		for _, p := range s.Players() {
			target := imp
			if p.ID == imp {
				target = other
			}
			if _, err := s.SubmitVote(ctx, p.ID, target); err != nil {
				t.Fatalf("round %d SubmitVote %s: %v", round, p.ID, err)
			}
		}
		if round < 2 {
			waitFor(t, "next round", func() bool {
				return s.Phase() == PhaseAnswering && !s.testVotingOpen()
			})
		}
	}

	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if !fm.broadcastContains("Starting round 2") {
		t.Fatalf("missing next-round broadcast")
	}
}

func TestJoinRules(t *testing.T) {
	_, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	ctx := context.Background()

	if _, err := s.Join(ctx, Player{ID: "u1", Name: "Alice"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("duplicate join err = %v, want ErrAlreadyJoined", err)
	}
	fm.absent["ghost"] = true
	if _, err := s.Join(ctx, Player{ID: "ghost", Name: "Ghost"}); !errors.Is(err, ErrNotRoomMember) {
		t.Fatalf("non-member join err = %v, want ErrNotRoomMember", err)
	}
	fm.dmFail["closed"] = true
	if _, err := s.Join(ctx, Player{ID: "closed", Name: "Closed"}); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("unreachable join err = %v, want ErrUnreachable", err)
	}
	if len(s.Players()) != 3 {
		t.Fatalf("roster size = %d, want 3 after rejected joins", len(s.Players()))
	}

	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")
	if _, err := s.Join(ctx, Player{ID: "u9", Name: "Late"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("late join err = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartRules(t *testing.T) {
	_, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 2)
	ctx := context.Background()

	if _, err := s.Start(ctx, "u2"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host start err = %v, want ErrNotHost", err)
	}
	if _, err := s.Start(ctx, "u1"); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("two-player start err = %v, want ErrNotEnoughPlayers", err)
	}
}

func TestStartPrunesDepartedThenChecksQuorum(t *testing.T) {
	_, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	fm.setAbsent("u3")
	if _, err := s.Start(context.Background(), "u1"); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("start err = %v, want ErrNotEnoughPlayers after pruning", err)
	}
	if len(s.Players()) != 2 {
		t.Fatalf("roster size = %d, want 2 after pruning u3", len(s.Players()))
	}
}

func TestAnswerValidation(t *testing.T) {
	_, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	ctx := context.Background()

	if _, err := s.SubmitAnswer(ctx, "u1", "early"); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("pre-round answer err = %v, want ErrNoActiveRound", err)
	}
	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")

	if _, err := s.SubmitAnswer(ctx, "u1", "   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("blank answer err = %v, want ErrEmptyAnswer", err)
	}
	if _, err := s.SubmitAnswer(ctx, "u1", strings.Repeat("x", MaxAnswerLen+1)); !errors.Is(err, ErrAnswerTooLong) {
		t.Fatalf("long answer err = %v, want ErrAnswerTooLong", err)
	}
	if _, err := s.SubmitAnswer(ctx, "stranger", "hi"); !errors.Is(err, ErrNotPlayer) {
		t.Fatalf("stranger answer err = %v, want ErrNotPlayer", err)
	}
	if res, err := s.SubmitAnswer(ctx, "u1", "mine"); err != nil || !res.Private {
		t.Fatalf("answer = (%v, %v), want private ack", res, err)
	}
	if _, err := s.SubmitAnswer(ctx, "u1", "again"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second answer err = %v, want ErrAlreadyAnswered", err)
	}
}

func TestVoteValidation(t *testing.T) {
	_, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 4)
	ctx := context.Background()

	if _, err := s.SubmitVote(ctx, "u1", "u2"); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("pre-round vote err = %v, want ErrVotingClosed", err)
	}
	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")
	submitAllAnswers(t, s)

	if _, err := s.SubmitVote(ctx, "u1", "u1"); !errors.Is(err, ErrSelfVote) {
		t.Fatalf("self vote err = %v, want ErrSelfVote", err)
	}
	if _, err := s.SubmitVote(ctx, "u1", "nobody"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("bad target err = %v, want ErrInvalidTarget", err)
	}
	if _, err := s.SubmitVote(ctx, "stranger", "u2"); !errors.Is(err, ErrNotPlayer) {
		t.Fatalf("stranger vote err = %v, want ErrNotPlayer", err)
	}
	if _, err := s.SubmitVote(ctx, "u1", "u2"); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := s.SubmitVote(ctx, "u1", "u3"); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("second vote err = %v, want ErrAlreadyVoted", err)
	}
}

func TestDepartureDuringAnsweringCompletesSet(t *testing.T) {
	_, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 4)
	ctx := context.Background()
	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")

	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := s.SubmitAnswer(ctx, id, "a"); err != nil {
			t.Fatalf("SubmitAnswer %s: %v", id, err)
		}
	}
	// the only player without an answer leaves: the set is now complete
	fm.setAbsent("u4")
	s.HandleDeparture(ctx, "u4")

	waitFor(t, "voting after departure", func() bool {
		return s.testVotingOpen() || s.Phase() == PhaseEnded
	})
	if len(s.Players()) != 3 {
		t.Fatalf("roster size = %d, want 3", len(s.Players()))
	}
	if !fm.broadcastContains("left the room and was removed") {
		t.Fatalf("missing removal broadcast")
	}
}

func TestVoterDepartureDropsTheirVotes(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 5)
	ctx := context.Background()
	startGame(t, s)
	submitAllAnswers(t, s)

	imp := s.testImposter()
	// pick a departing non-imposter and a second non-imposter for vote targets
	var leaver, other string
	for _, p := range s.Players() {
		if p.ID == imp {
			continue
		}
		if leaver == "" {
			leaver = p.ID
		} else if other == "" {
			other = p.ID
		}
	}
	if _, err := s.SubmitVote(ctx, leaver, other); err != nil {
		t.Fatalf("leaver vote: %v", err)
	}
	if _, err := s.SubmitVote(ctx, other, leaver); err != nil {
		t.Fatalf("vote for leaver: %v", err)
	}

	fm.setAbsent(leaver)
	s.HandleDeparture(ctx, leaver)

	s.mu.Lock()
	_, byLeaver := s.votes[leaver]
	forLeaver := false
	for _, target := range s.votes {
		if target == leaver {
			forLeaver = true
		}
	}
	s.mu.Unlock()
	if byLeaver || forLeaver {
		t.Fatalf("votes referencing the departed player must be dropped")
	}

	// remaining players finish the round
	for _, p := range s.Players() {
		target := imp
		if p.ID == imp {
			target = other
		}
		if _, err := s.SubmitVote(ctx, p.ID, target); err != nil && !errors.Is(err, ErrAlreadyVoted) {
			t.Fatalf("SubmitVote %s: %v", p.ID, err)
		}
	}
	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
}

func TestImposterDepartureForcesResolution(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 4)
	ctx := context.Background()
	startGame(t, s)
	submitAllAnswers(t, s)

	imp := s.testImposter()
	fm.setAbsent(imp)
	s.HandleDeparture(ctx, imp)

	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if !fm.broadcastContains("The imposter") || !fm.broadcastContains("left the game") {
		t.Fatalf("missing imposter departure broadcast; got %v", fm.channel)
	}
	for id, pts := range s.Scores() {
		if pts != 0 {
			t.Fatalf("player %s score = %d, want 0 when the imposter departs", id, pts)
		}
	}
}

func TestQuorumLossEndsSessionEarly(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 3, NoVoteTimer: true}, 3)
	ctx := context.Background()
	startGame(t, s)

	fm.setAbsent("u3")
	s.HandleDeparture(ctx, "u3")

	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if s.Phase() != PhaseEnded {
		t.Fatalf("phase = %v, want ended", s.Phase())
	}
	if !fm.broadcastContains("Not enough players to continue") {
		t.Fatalf("missing quorum broadcast; got %v", fm.channel)
	}
}

func TestForceEndRoundSkipsToResults(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	ctx := context.Background()
	startGame(t, s)
	submitAllAnswers(t, s)

	if _, err := s.ForceEndRound(ctx, "u2", ""); !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host force err = %v, want ErrNotHost", err)
	}
	if _, err := s.ForceEndRound(ctx, "u1", ""); err != nil {
		t.Fatalf("ForceEndRound: %v", err)
	}
	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if !fm.broadcastContains("forcefully ended") {
		t.Fatalf("missing force broadcast")
	}
}

func TestForceEndRoundRemovesTarget(t *testing.T) {
	_, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 4)
	ctx := context.Background()
	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")

	if _, err := s.ForceEndRound(ctx, "u1", "u4"); err != nil {
		t.Fatalf("ForceEndRound with target: %v", err)
	}
	if len(s.Players()) != 3 {
		t.Fatalf("roster size = %d, want 3 after kick", len(s.Players()))
	}
	if !fm.broadcastContains("has been removed from the game") {
		t.Fatalf("missing kick broadcast")
	}
}

func TestForceEndGameIsIdempotent(t *testing.T) {
	reg, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	ctx := context.Background()
	startGame(t, s)

	if _, err := s.ForceEndGame(ctx, "u1"); err != nil {
		t.Fatalf("ForceEndGame: %v", err)
	}
	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if _, err := s.ForceEndGame(ctx, "u1"); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("second force-end err = %v, want ErrSessionInactive", err)
	}
}

func TestScoreboardBeforeAnyScores(t *testing.T) {
	_, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	res := s.Scoreboard()
	if !res.Private || res.Text != "No scores yet." {
		t.Fatalf("scoreboard = %+v, want private no-scores notice", res)
	}
}

func TestFindPlayerByNameOrID(t *testing.T) {
	_, s, _ := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	if p, ok := s.FindPlayer("@bob"); !ok || p.ID != "u2" {
		t.Fatalf("FindPlayer(@bob) = (%v, %v), want u2", p, ok)
	}
	if p, ok := s.FindPlayer("u3"); !ok || p.Name != "Carol" {
		t.Fatalf("FindPlayer(u3) = (%v, %v), want Carol", p, ok)
	}
	if _, ok := s.FindPlayer("nobody"); ok {
		t.Fatalf("FindPlayer(nobody) should miss")
	}
}

func TestPromptDeliveryFailureRemovesPlayer(t *testing.T) {
	_, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 4)
	ctx := context.Background()

	// joined fine, but DMs close before the first prompt goes out
	fm.setDMFail("u4")
	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")

	waitFor(t, "unreachable player removal", func() bool { return len(s.Players()) == 3 })
	for _, p := range s.Players() {
		if p.ID == "u4" {
			t.Fatalf("u4 still on the roster after prompt delivery failed")
		}
	}
	if !fm.broadcastContains("could not be messaged privately") {
		t.Fatalf("missing unreachable-removal broadcast; got %v", fm.channel)
	}
}

func TestForceEndRoundTwiceResolvesOnce(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, NoVoteTimer: true}, 3)
	// keep the session resolving long enough for the second call to land
	s.resultsDelay = 200 * time.Millisecond
	ctx := context.Background()
	startGame(t, s)
	submitAllAnswers(t, s)

	if _, err := s.ForceEndRound(ctx, "u1", ""); err != nil {
		t.Fatalf("first ForceEndRound: %v", err)
	}
	res, err := s.ForceEndRound(ctx, "u1", "")
	if err != nil {
		t.Fatalf("second ForceEndRound: %v", err)
	}
	if res == nil || !res.Private || !strings.Contains(res.Text, "already resolving") {
		t.Fatalf("second force = %+v, want private already-resolving notice", res)
	}

	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if n := fm.broadcastCount("forcefully ended"); n != 1 {
		t.Fatalf("force broadcast count = %d, want 1", n)
	}
	if n := fm.broadcastCount("No votes were cast"); n != 1 {
		t.Fatalf("no-votes broadcast count = %d, want 1", n)
	}
	if n := fm.broadcastCount("❗ The imposter was"); n != 1 {
		t.Fatalf("imposter reveal count = %d, want 1", n)
	}
	if n := fm.broadcastCount("Final Scores"); n != 1 {
		t.Fatalf("final standings count = %d, want 1", n)
	}
}

func TestPromptDistributionOneImposter(t *testing.T) {
	// a one-pair catalog makes both prompts known in advance
	const normalQ = "What is your favorite season?"
	const imposterQ = "What is your favorite holiday?"
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	data := "pairs:\n  - normal: \"" + normalQ + "\"\n    imposter: \"" + imposterQ + "\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := questions.New(path)
	if err != nil {
		t.Fatalf("questions.New: %v", err)
	}

	fm := newFakeMessenger()
	reg := NewRegistry(Deps{Messenger: fm, Catalog: cat, Formatter: format.New("/")})
	s, err := reg.Create("room1", Player{ID: "u1", Name: "Alice"}, Settings{Rounds: 1, NoVoteTimer: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.resultsDelay = time.Millisecond
	s.nextRoundDelay = time.Millisecond
	s.pollInterval = 10 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		p := Player{ID: fmt.Sprintf("u%d", i+1), Name: testNames[i]}
		if _, err := s.Join(ctx, p); err != nil {
			t.Fatalf("Join %s: %v", p.ID, err)
		}
	}
	startGame(t, s)
	defer s.ForceEndGame(ctx, "u1")

	// join DM plus prompt DM per player
	waitFor(t, "prompt delivery", func() bool {
		for _, p := range s.Players() {
			if fm.directCount(p.ID) < 2 {
				return false
			}
		}
		return true
	})

	imp := s.testImposter()
	holders := 0
	for _, p := range s.Players() {
		prompt := fm.lastDirect(p.ID)
		switch {
		case strings.Contains(prompt, imposterQ):
			holders++
			if p.ID != imp {
				t.Fatalf("player %s holds the imposter prompt but the imposter is %s", p.ID, imp)
			}
		case strings.Contains(prompt, normalQ):
			if p.ID == imp {
				t.Fatalf("imposter %s received the shared prompt", imp)
			}
		default:
			t.Fatalf("player %s received neither prompt of the pair: %q", p.ID, prompt)
		}
	}
	if holders != 1 {
		t.Fatalf("imposter prompt holders = %d, want exactly 1", holders)
	}
}

func TestBoundedTimerClosesEarlyWhenAllVote(t *testing.T) {
	reg, s, fm := newTestGame(t, Settings{Rounds: 1, DiscussionSeconds: 600}, 3)
	ctx := context.Background()
	startGame(t, s)
	submitAllAnswers(t, s)

	imp := s.testImposter()
	var other string
	for _, p := range s.Players() {
		if p.ID != imp {
			other = p.ID
			break
		}
	}
	for _, p := range s.Players() {
		target := imp
		if p.ID == imp {
			target = other
		}
		if _, err := s.SubmitVote(ctx, p.ID, target); err != nil {
			t.Fatalf("SubmitVote %s: %v", p.ID, err)
		}
	}

	// the full vote set wakes the 600s wait immediately
	waitFor(t, "session end", func() bool { return reg.Len() == 0 })
	if !fm.broadcastContains("Time's up") {
		t.Fatalf("missing voting-closed broadcast on early completion")
	}
}

type captureRecorder struct {
	mu      sync.Mutex
	results [][]PlayerResult
}

func (r *captureRecorder) RecordSession(_ context.Context, _ string, _ int, results []PlayerResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, results)
	return nil
}

func (r *captureRecorder) recorded() [][]PlayerResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]PlayerResult(nil), r.results...)
}

func TestRecorderIncludesDepartedScorers(t *testing.T) {
	rec := &captureRecorder{}
	cat, err := questions.New("")
	if err != nil {
		t.Fatalf("questions.New: %v", err)
	}
	fm := newFakeMessenger()
	reg := NewRegistry(Deps{Messenger: fm, Catalog: cat, Formatter: format.New("/"), Recorder: rec})
	s, err := reg.Create("room1", Player{ID: "u1", Name: "Alice"}, Settings{Rounds: 2, NoVoteTimer: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.resultsDelay = time.Millisecond
	s.nextRoundDelay = time.Millisecond
	s.pollInterval = 10 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		p := Player{ID: fmt.Sprintf("u%d", i+1), Name: testNames[i]}
		if _, err := s.Join(ctx, p); err != nil {
			t.Fatalf("Join %s: %v", p.ID, err)
		}
	}
	startGame(t, s)

	// round 1: catch the imposter so the other players score
	submitAllAnswers(t, s)
	imp := s.testImposter()
	var other string
	for _, p := range s.Players() {
		if p.ID != imp {
			other = p.ID
			break
		}
	}
	for _, p := range s.Players() {
		target := imp
		if p.ID == imp {
			target = other
		}
		if _, err := s.SubmitVote(ctx, p.ID, target); err != nil {
			t.Fatalf("SubmitVote %s: %v", p.ID, err)
		}
	}
	waitFor(t, "round 2", func() bool {
		return s.Phase() == PhaseAnswering && !s.testVotingOpen()
	})

	var leaver string
	for id, pts := range s.Scores() {
		if pts == 1 {
			leaver = id
			break
		}
	}
	if leaver == "" {
		t.Fatalf("no scorer found after round 1: %v", s.Scores())
	}
	fm.setAbsent(leaver)
	s.HandleDeparture(ctx, leaver)
	s.ForceEndGame(ctx, "u1") // departure may already have finalized; error is fine

	waitFor(t, "recorded results", func() bool { return len(rec.recorded()) == 1 })
	results := rec.recorded()[0]
	found := false
	for _, r := range results {
		if r.ID == leaver {
			found = true
			if r.Points != 1 {
				t.Fatalf("departed scorer points = %d, want 1", r.Points)
			}
		}
	}
	if !found {
		t.Fatalf("departed scorer %s missing from recorded results: %+v", leaver, results)
	}
}

func TestSettingsValidate(t *testing.T) {
	cases := []struct {
		st Settings
		ok bool
	}{
		{Settings{Rounds: 4, DiscussionSeconds: 90}, true},
		{Settings{Rounds: 1, DiscussionSeconds: 10}, true},
		{Settings{Rounds: 20, DiscussionSeconds: 600}, true},
		{Settings{Rounds: 0, DiscussionSeconds: 90}, false},
		{Settings{Rounds: 21, DiscussionSeconds: 90}, false},
		{Settings{Rounds: 4, DiscussionSeconds: 9}, false},
		{Settings{Rounds: 4, DiscussionSeconds: 601}, false},
		{Settings{Rounds: 4, NoVoteTimer: true}, true},
	}
	for i, c := range cases {
		if err := c.st.Validate(); (err == nil) != c.ok {
			t.Fatalf("case %d: Validate(%+v) = %v, want ok=%v", i, c.st, err, c.ok)
		}
	}
}
