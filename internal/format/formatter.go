package format

import (
	"fmt"
	"strings"
)

// Formatter renders all user-facing game text. Keeping the wording in one
// place lets the session logic stay free of presentation concerns.
type Formatter struct {
	prefix string
}

func New(prefix string) *Formatter {
	return &Formatter{prefix: strings.TrimSpace(prefix)}
}

func (f *Formatter) Prefix() string { return f.prefix }

// ScoreRow is one scoreboard line, already ordered by the caller.
type ScoreRow struct {
	Name   string
	Points int
}

// AnswerEntry is one revealed answer in submission order.
type AnswerEntry struct {
	Name string
	Text string
}

func (f *Formatter) LobbyOpened(rounds, timerSeconds int, noVoteTimer, anonymous bool) string {
	timer := fmt.Sprintf("%ds", timerSeconds)
	if noVoteTimer {
		timer = "none"
	}
	var sb strings.Builder
	sb.WriteString("A new game of Guess the Imposter has started!\n")
	sb.WriteString(fmt.Sprintf("Type `%sjoin` to participate.\n", f.prefix))
	sb.WriteString(fmt.Sprintf("Rounds: %d | Timer: %s | Anonymous answers: %t\n", rounds, timer, anonymous))
	sb.WriteString(fmt.Sprintf("The host must run `%sstart` to begin once enough players join.", f.prefix))
	return sb.String()
}

func (f *Formatter) JoinDM() string {
	return "You're in! Your question for each round will arrive here. Don't share it with the group."
}

func (f *Formatter) PlayerJoined(name string, count int) string {
	return fmt.Sprintf("%s joined the game! (%d players)", name, count)
}

func (f *Formatter) RemovedUnreachable(name string) string {
	return fmt.Sprintf("%s could not be messaged privately and was removed from the game.", name)
}

func (f *Formatter) RemovedLeftRoom(name string) string {
	return fmt.Sprintf("%s left the room and was removed from the game.", name)
}

func (f *Formatter) RemovedByHost(name string) string {
	return fmt.Sprintf("%s has been removed from the game.", name)
}

func (f *Formatter) StartingGame() string {
	return "Starting game..."
}

func (f *Formatter) PromptDM(question string) string {
	return fmt.Sprintf("Here's your question:\n\n❓ %s", question)
}

func (f *Formatter) RoundStart(round int) string {
	return fmt.Sprintf("— Round %d —\nEveryone, answer your question using `%sanswer [your answer]`.\nPlease don't reveal your question!", round, f.prefix)
}

func (f *Formatter) AnswersReveal(entries []AnswerEntry, anonymous bool) string {
	var sb strings.Builder
	sb.WriteString("📝 All answers:\n")
	for _, e := range entries {
		if anonymous {
			sb.WriteString(fmt.Sprintf("Answer: %s\n", e.Text))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %s\n", e.Name, e.Text))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) CommonQuestion(question string) string {
	return fmt.Sprintf("🧠 Everyone's question: %s", question)
}

func (f *Formatter) VotingOpen(timerSeconds int) string {
	return fmt.Sprintf("You have %d seconds to discuss and find the imposter! Voting is open during this time. Use `%svote @player`.", timerSeconds, f.prefix)
}

func (f *Formatter) VotingOpenNoTimer() string {
	return fmt.Sprintf("No timer for voting. The round will continue until all votes are in. Use `%svote @player`.", f.prefix)
}

func (f *Formatter) Reminder(secondsLeft int) string {
	return fmt.Sprintf("⏳ %d seconds left! Time is running out, please vote using `%svote @player`.", secondsLeft, f.prefix)
}

func (f *Formatter) VotingClosed() string {
	return "Time's up! Voting is now closed."
}

func (f *Formatter) RoundForced() string {
	return "The round has been forcefully ended. Proceeding to results."
}

func (f *Formatter) TieResult() string {
	return "It's a tie! The imposter escapes by default."
}

func (f *Formatter) NoVotesResult() string {
	return "No votes were cast. The imposter escapes by default."
}

func (f *Formatter) ImposterReveal(name string) string {
	return fmt.Sprintf("❗ The imposter was %s!", name)
}

func (f *Formatter) ImposterPrompt(question string) string {
	return fmt.Sprintf("❓ Their question was: \"%s\"", question)
}

func (f *Formatter) ImposterUnknown() string {
	return "Imposter data is not present."
}

func (f *Formatter) ImposterDeparted(name, question string) string {
	return fmt.Sprintf("The imposter %s left the game! Their question was: \"%s\"\nVoting is closed, moving on to results.", name, question)
}

func (f *Formatter) Caught() string {
	return "🎯 The imposter was caught!"
}

func (f *Formatter) Evaded() string {
	return "😈 The imposter got away!"
}

func (f *Formatter) Scoreboard(rows []ScoreRow) string {
	if len(rows) == 0 {
		return "No scores yet."
	}
	var sb strings.Builder
	sb.WriteString("🏅 Current Scores:\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s: %d pts\n", r.Name, r.Points))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) NextRound(round int) string {
	return fmt.Sprintf("--- Starting round %d ---", round)
}

func (f *Formatter) FinalStandings(rows []ScoreRow) string {
	var sb strings.Builder
	sb.WriteString("🏆 Final Scores:\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, r := range rows {
		if i < len(medals) {
			sb.WriteString(fmt.Sprintf("%s %s - %d pts\n", medals[i], r.Name, r.Points))
		} else {
			sb.WriteString(fmt.Sprintf("%s - %d pts\n", r.Name, r.Points))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) Winner(names []string, points int) string {
	if len(names) == 1 {
		return fmt.Sprintf("🎉 %s wins with %d pts!", names[0], points)
	}
	return fmt.Sprintf("🎉 It's a shared victory: %s with %d pts each!", strings.Join(names, ", "), points)
}

func (f *Formatter) EarlyEndQuorum() string {
	return "Not enough players to continue. Game ended."
}

func (f *Formatter) EarlyEndForced() string {
	return "Game ended early!"
}

func (f *Formatter) EarlyEndQuestions(normal, imposter string) string {
	return fmt.Sprintf("Normal question: %s\nImposter question: %s", normal, imposter)
}

func (f *Formatter) EarlyEndNoQuestions() string {
	return "Question data is not present."
}

func (f *Formatter) NoScoreData() string {
	return "No players or score data is present."
}

func (f *Formatter) UnexpectedFailure() string {
	return "Something went wrong while running the round. The game has been ended."
}

func (f *Formatter) Help() string {
	p := f.prefix
	return strings.Join([]string{
		"🕵️ Guess the Imposter",
		"",
		"• " + p + "startgame [rounds] [timer] [anonymous] [novotetimer]",
		"  open a lobby in this room",
		"• " + p + "join — join the lobby",
		"• " + p + "start — host starts the game (3+ players)",
		"• " + p + "answer <text> — answer your private question",
		"• " + p + "vote @player — vote for the imposter",
		"• " + p + "scoreboard — show current scores",
		"• " + p + "endround [@player] — host: force the round to resolve",
		"• " + p + "endgame — host: end the game",
		"• " + p + "stats — your career stats",
	}, "\n")
}
