package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/logger/pkg/logger"

	"github.com/wavenet-im/chat-client/config"
	"github.com/wavenet-im/chat-client/internal/api"
	"github.com/wavenet-im/chat-client/internal/engine"
	"github.com/wavenet-im/chat-client/internal/transport/ws"
)

func main() {
	userFlag := flag.String("user", "", "identity to sign in as (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})

	selfID := cfg.Identity.UserID
	if *userFlag != "" {
		selfID = *userFlag
	}
	if selfID == "" {
		log.Fatal("identity.user_id (or -user) is required")
	}

	ctx := context.Background()
	rest := api.NewClient(cfg.Server.BaseURL)
	conn := ws.NewClient(cfg.Server.WSURL, selfID)
	if err := conn.Dial(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	presence := engine.NewPresence()
	app := &app{
		cfg:      cfg,
		selfID:   selfID,
		rest:     rest,
		conn:     conn,
		presence: presence,
		sidebar:  engine.NewSidebar(rest, selfID, presence),
	}

	fmt.Printf("signed in as %s — /list, /search <q>, /open <n|id>, /start <user>, /quit\n", selfID)
	app.listConversations(ctx)
	app.loop(ctx)
}

type app struct {
	cfg      *config.Config
	selfID   string
	rest     *api.Client
	conn     *ws.Client
	presence *engine.Presence
	sidebar  *engine.Sidebar

	entries []engine.Entry
	session *engine.Session
	render  renderer
}

func (a *app) loop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			a.closeSession()
			return
		case line == "/list":
			a.closeSession()
			a.listConversations(ctx)
		case strings.HasPrefix(line, "/search "):
			a.search(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/search ")))
		case strings.HasPrefix(line, "/open "):
			a.open(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
		case strings.HasPrefix(line, "/start "):
			a.start(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/start ")))
		default:
			a.send(ctx, line)
		}
	}
}

func (a *app) listConversations(ctx context.Context) {
	entries, err := a.sidebar.Refresh(ctx)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	a.entries = entries
	if len(entries) == 0 {
		fmt.Println("no conversations yet — /search to find someone")
		return
	}
	for i, e := range entries {
		status := "offline"
		if e.Online {
			status = "online"
		}
		last := ""
		if e.LastMessage != nil {
			last = " — " + e.LastMessage.Content
		}
		fmt.Printf("%d. %s (%s)%s\n", i+1, e.Partner.Username, status, last)
	}
}

func (a *app) search(ctx context.Context, query string) {
	users, err := a.sidebar.Search(ctx, query)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	for _, u := range users {
		fmt.Printf("- %s (%s)\n", u.Username, u.ID)
	}
}

func (a *app) start(ctx context.Context, otherID string) {
	id, err := a.sidebar.StartConversation(ctx, otherID)
	if err != nil {
		fmt.Println("!", err)
		return
	}
	a.openByID(ctx, id)
}

func (a *app) open(ctx context.Context, arg string) {
	id := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(a.entries) {
		id = a.entries[n-1].ConversationID
	}
	a.openByID(ctx, id)
}

// openByID tears down the active session before the next one loads, so no
// stale event can cross over.
func (a *app) openByID(ctx context.Context, conversationID string) {
	a.closeSession()

	a.render = renderer{}
	s := engine.NewSession(conversationID, a.selfID, a.rest, a.conn, a.presence, a.cfg.TypingTimeout())
	s.OnUpdate(a.render.show)
	s.OnError(func(err error) { fmt.Println("!", err) })
	s.Open(ctx)
	a.session = s
	fmt.Println("-- conversation open, type to chat --")
}

func (a *app) closeSession() {
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
}

func (a *app) send(ctx context.Context, text string) {
	if a.session == nil {
		fmt.Println("no conversation open — /open first")
		return
	}
	// a line terminal has no per-keystroke events; the composed line is the
	// closest input-change signal available
	a.session.InputChanged()
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.session.Send(sendCtx, text); err != nil {
		// input already echoed on the terminal, user can resend it
		slog.Debug("send failed", "err", err)
		fmt.Println("! send failed:", err)
	}
}

// renderer prints state transitions rather than redrawing the log: new tail
// messages, typing changes, presence changes.
type renderer struct {
	shown      int
	typing     bool
	online     bool
	onlineInit bool
}

func (r *renderer) show(st engine.State) {
	msgs := st.Messages
	for ; r.shown < len(msgs); r.shown++ {
		m := msgs[r.shown]
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.SenderID, m.Content)
	}
	if st.PartnerTyping != r.typing {
		r.typing = st.PartnerTyping
		if r.typing {
			fmt.Printf("%s is typing...\n", st.Partner.Username)
		}
	}
	if st.PartnerKnown && (!r.onlineInit || st.PartnerOnline != r.online) {
		r.onlineInit = true
		r.online = st.PartnerOnline
		status := "offline"
		if r.online {
			status = "online"
		}
		fmt.Printf("-- %s is %s --\n", st.Partner.Username, status)
	}
}
