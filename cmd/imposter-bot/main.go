package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/chat"
	appcfg "github.com/Junith-K/guess-the-imposter/internal/config"
	"github.com/Junith-K/guess-the-imposter/internal/format"
	"github.com/Junith-K/guess-the-imposter/internal/game"
	"github.com/Junith-K/guess-the-imposter/internal/obslog"
	"github.com/Junith-K/guess-the-imposter/internal/questions"
	"github.com/Junith-K/guess-the-imposter/internal/stats"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	catalog, err := questions.New(cfg.QuestionsFile)
	if err != nil {
		log.Fatalf("questions error: %v", err)
	}
	obslog.L().Info("questions_loaded", zap.Int("pairs", catalog.Len()))

	client := chat.NewClient(cfg.BridgeBaseURL)
	formatter := format.New(cfg.BotPrefix)

	// stats backends are optional; the game runs fine without either
	var statsSvc *stats.Service
	{
		var store *stats.Store
		var repo *stats.Repository
		if cfg.RedisURL != "" {
			store, err = stats.NewStore(cfg.RedisURL)
			if err != nil {
				log.Fatalf("stats store init error: %v", err)
			}
		}
		if cfg.DatabaseURL != "" {
			repo, err = stats.NewRepository(cfg.DatabaseURL)
			if err != nil {
				log.Fatalf("stats repo init error: %v", err)
			}
		}
		if store != nil || repo != nil {
			statsSvc = stats.NewService(store, repo)
		}
	}

	deps := game.Deps{
		Messenger: client,
		Catalog:   catalog,
		Formatter: formatter,
	}
	if statsSvc != nil {
		deps.Recorder = statsSvc
	}
	registry := game.NewRegistry(deps)

	bot := &bot{
		cfg:       cfg,
		client:    client,
		formatter: formatter,
		registry:  registry,
		stats:     statsSvc,
	}

	ws := chat.NewWebSocket(cfg.BridgeWSURL, 5, time.Second)
	ws.OnStateChange(func(state chat.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *chat.Message) {
		if msg == nil {
			return
		}
		if len(cfg.AllowedRooms) > 0 && !roomAllowed(cfg.AllowedRooms, msg.Room) {
			return
		}
		if msg.Feed != nil {
			// membership changes matter even when no command was typed
			go bot.handleFeed(msg)
			return
		}
		if msg.Msg == "" || !strings.HasPrefix(strings.TrimSpace(msg.Msg), cfg.BotPrefix) {
			return
		}
		// keep the WS read loop free
		go bot.handleCommand(msg)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		log.Fatalf("ws connect error: %v", err)
	}
	cancel()
	obslog.L().Info("bot_started", zap.String("prefix", cfg.BotPrefix), zap.Int("allowed_rooms", len(cfg.AllowedRooms)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = ws.Close(context.Background())
	if statsSvc != nil {
		statsSvc.Close()
	}
	obslog.L().Info("bot_stopped")
}

type bot struct {
	cfg       *appcfg.AppConfig
	client    *chat.Client
	formatter *format.Formatter
	registry  *game.Registry
	stats     *stats.Service
}

func (b *bot) handleFeed(msg *chat.Message) {
	if msg.Feed.Type != chat.FeedMemberLeave && msg.Feed.Type != chat.FeedMemberKick {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b.registry.HandleDeparture(ctx, msg.Room, msg.Feed.UserID)
}

func (b *bot) handleCommand(msg *chat.Message) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), b.cfg.BotPrefix))
	if raw == "" {
		return
	}
	parts := strings.Fields(raw)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	actor := game.Player{ID: userIDFromMessage(msg), Name: senderName(msg)}
	if actor.ID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cmd {
	case "help":
		b.send(ctx, msg.Room, b.formatter.Help())
	case "startgame":
		b.handleStartGame(ctx, msg.Room, actor, args)
	case "join":
		b.withSession(ctx, msg.Room, actor, func(s *game.Session) (*game.ActionResult, error) {
			return s.Join(ctx, actor)
		})
	case "start":
		b.withSession(ctx, msg.Room, actor, func(s *game.Session) (*game.ActionResult, error) {
			return s.Start(ctx, actor.ID)
		})
	case "answer":
		text := strings.TrimSpace(strings.TrimPrefix(raw, parts[0]))
		b.withSession(ctx, msg.Room, actor, func(s *game.Session) (*game.ActionResult, error) {
			return s.SubmitAnswer(ctx, actor.ID, text)
		})
	case "vote":
		b.handleVote(ctx, msg.Room, actor, args)
	case "scoreboard":
		b.withSession(ctx, msg.Room, actor, func(s *game.Session) (*game.ActionResult, error) {
			return s.Scoreboard(), nil
		})
	case "endround":
		b.handleEndRound(ctx, msg.Room, actor, args)
	case "endgame":
		b.withSession(ctx, msg.Room, actor, func(s *game.Session) (*game.ActionResult, error) {
			return s.ForceEndGame(ctx, actor.ID)
		})
	case "stats":
		b.handleStats(ctx, msg.Room, actor)
	}
}

// handleStartGame validates arguments here, at the front door, so the session
// never sees out-of-range settings.
func (b *bot) handleStartGame(ctx context.Context, room string, actor game.Player, args []string) {
	st := game.Settings{
		Rounds:            b.cfg.DefaultRounds,
		DiscussionSeconds: b.cfg.DefaultTimerSeconds,
	}

	var nums []int
	for _, a := range args {
		switch strings.ToLower(a) {
		case "novotetimer", "notimer":
			st.NoVoteTimer = true
		case "anonymous", "anon":
			st.AnonymousAnswers = true
		default:
			n, err := strconv.Atoi(a)
			if err != nil {
				b.sendDM(ctx, room, actor.ID, fmt.Sprintf("Unrecognized option %q. Usage: %sstartgame [rounds] [timer] [anonymous] [novotetimer]", a, b.cfg.BotPrefix))
				return
			}
			nums = append(nums, n)
		}
	}
	if len(nums) >= 1 {
		st.Rounds = nums[0]
	}
	if len(nums) >= 2 {
		st.DiscussionSeconds = nums[1]
	}
	if len(nums) > 2 {
		b.sendDM(ctx, room, actor.ID, "Too many numeric options; expected at most rounds and timer.")
		return
	}
	if st.Rounds < appcfg.MinRounds || st.Rounds > appcfg.MaxRounds {
		b.sendDM(ctx, room, actor.ID, fmt.Sprintf("Rounds must be between %d and %d.", appcfg.MinRounds, appcfg.MaxRounds))
		return
	}
	if !st.NoVoteTimer && (st.DiscussionSeconds < appcfg.MinTimerSeconds || st.DiscussionSeconds > appcfg.MaxTimerSeconds) {
		b.sendDM(ctx, room, actor.ID, fmt.Sprintf("Timer must be between %d and %d seconds.", appcfg.MinTimerSeconds, appcfg.MaxTimerSeconds))
		return
	}

	s, err := b.registry.Create(room, actor, st)
	if err != nil {
		b.sendDM(ctx, room, actor.ID, err.Error())
		return
	}
	s.OpenLobby(ctx)
}

func (b *bot) handleVote(ctx context.Context, room string, actor game.Player, args []string) {
	if len(args) < 1 {
		b.sendDM(ctx, room, actor.ID, "Usage: "+b.cfg.BotPrefix+"vote @player")
		return
	}
	s, ok := b.registry.Get(room)
	if !ok {
		b.sendDM(ctx, room, actor.ID, game.ErrNoSession.Error())
		return
	}
	target, ok := s.FindPlayer(args[0])
	if !ok {
		b.sendDM(ctx, room, actor.ID, game.ErrInvalidTarget.Error())
		return
	}
	res, err := s.SubmitVote(ctx, actor.ID, target.ID)
	b.deliver(ctx, room, actor.ID, res, err)
}

func (b *bot) handleEndRound(ctx context.Context, room string, actor game.Player, args []string) {
	s, ok := b.registry.Get(room)
	if !ok {
		b.sendDM(ctx, room, actor.ID, game.ErrNoSession.Error())
		return
	}
	targetID := ""
	if len(args) >= 1 {
		target, ok := s.FindPlayer(args[0])
		if !ok {
			b.sendDM(ctx, room, actor.ID, game.ErrNotPlayer.Error())
			return
		}
		targetID = target.ID
	}
	res, err := s.ForceEndRound(ctx, actor.ID, targetID)
	b.deliver(ctx, room, actor.ID, res, err)
}

func (b *bot) handleStats(ctx context.Context, room string, actor game.Player) {
	if b.stats == nil {
		b.sendDM(ctx, room, actor.ID, "Stats are not enabled on this bot.")
		return
	}
	us, err := b.stats.User(ctx, actor.ID)
	if err != nil {
		obslog.L().Warn("stats_lookup_failed", zap.String("user_id", actor.ID), zap.Error(err))
		b.sendDM(ctx, room, actor.ID, "Could not load your stats right now.")
		return
	}
	if us.Games == 0 {
		b.sendDM(ctx, room, actor.ID, "No games on record yet. Play a round first!")
		return
	}
	name := us.Name
	if name == "" {
		name = actor.Name
	}
	b.send(ctx, room, fmt.Sprintf("📊 %s — games: %d | wins: %d | points: %d", name, us.Games, us.Wins, us.Points))
}

func (b *bot) withSession(ctx context.Context, room string, actor game.Player, fn func(*game.Session) (*game.ActionResult, error)) {
	s, ok := b.registry.Get(room)
	if !ok {
		b.sendDM(ctx, room, actor.ID, game.ErrNoSession.Error())
		return
	}
	res, err := fn(s)
	b.deliver(ctx, room, actor.ID, res, err)
}

// deliver relays an action outcome: rejections and private results go to the
// actor directly, public results to the room.
func (b *bot) deliver(ctx context.Context, room, userID string, res *game.ActionResult, err error) {
	if err != nil {
		b.sendDM(ctx, room, userID, err.Error())
		return
	}
	if res == nil || res.Text == "" {
		return
	}
	if res.Private {
		b.sendDM(ctx, room, userID, res.Text)
		return
	}
	b.send(ctx, room, res.Text)
}

func (b *bot) send(ctx context.Context, room, text string) {
	if err := b.client.SendChannelMessage(ctx, room, text); err != nil {
		obslog.L().Warn("send_failed", zap.String("room", room), zap.Error(err))
	}
}

// sendDM prefers a direct message and falls back to the room so the user is
// never left without a response.
func (b *bot) sendDM(ctx context.Context, room, userID, text string) {
	if err := b.client.SendPrivateMessage(ctx, userID, text); err != nil {
		b.send(ctx, room, text)
	}
}

func userIDFromMessage(msg *chat.Message) string {
	if msg.JSON != nil && msg.JSON.UserID != "" {
		return msg.JSON.UserID
	}
	if msg.Sender != nil {
		return strings.TrimSpace(*msg.Sender)
	}
	return ""
}

func senderName(msg *chat.Message) string {
	if msg.JSON != nil && strings.TrimSpace(msg.JSON.UserName) != "" {
		return strings.TrimSpace(msg.JSON.UserName)
	}
	if msg.Sender != nil && strings.TrimSpace(*msg.Sender) != "" {
		return strings.TrimSpace(*msg.Sender)
	}
	return "player"
}

func roomAllowed(allowed []string, room string) bool {
	for _, r := range allowed {
		if r == room {
			return true
		}
	}
	return false
}
