// Command groundplan is the terminal client for the Groundplan
// planning-advice service: sign in, open or resume a session, and
// hold a streamed conversation with the reasoning agent.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/groundplan/client/internal/auth"
	"github.com/groundplan/client/internal/chat"
	"github.com/groundplan/client/internal/client"
	"github.com/groundplan/client/internal/config"
	"github.com/groundplan/client/internal/drawing"
	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/monitoring"
	"github.com/groundplan/client/internal/rest"
	"github.com/groundplan/client/internal/shared/id"
	"github.com/groundplan/client/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	baseURL := flag.String("base-url", "", "Service base URL, overrides config")
	email := flag.String("email", "", "Account email")
	register := flag.Bool("register", false, "Register the account before signing in")
	sessionID := flag.String("session", "", "Resume an existing session instead of creating one")
	drawingPath := flag.String("drawing", "", "JSON file of drawing objects to upload as context")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.API.BaseURL = *baseURL
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Format == "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	app, err := newApp(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx, runOptions{
		email:       *email,
		register:    *register,
		sessionID:   *sessionID,
		drawingPath: *drawingPath,
	}); err != nil {
		app.manager.Disconnect()
		log.Fatal("client failed", zap.Error(err))
	}
	app.manager.Disconnect()
}

type runOptions struct {
	email       string
	register    bool
	sessionID   string
	drawingPath string
}

// app holds the wired client stack.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *store.Store
	creds   *auth.Store
	auth    *auth.Client
	session *rest.SessionAPI
	manager *client.Manager
	chat    *chat.Service
}

func newApp(cfg *config.Config, log *logging.Logger) (*app, error) {
	metrics := monitoring.New(prometheus.DefaultRegisterer)
	creds := auth.NewStore()

	restClient := rest.NewClient(rest.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RetryCount:        cfg.API.RetryCount,
		RetryWaitMin:      cfg.API.RetryWaitMin,
		RetryWaitMax:      cfg.API.RetryWaitMax,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
	}, creds, id.NewGenerator(), metrics, log)
	sessionAPI := rest.NewSessionAPI(restClient)

	st := store.New()
	dispatcher := chat.NewDispatcher(st, sessionAPI, metrics, log)
	manager := client.New(client.Config{
		BaseURL:           cfg.API.BaseURL,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		HandshakeTimeout:  cfg.Stream.HandshakeTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		FeedBuffer:        cfg.Stream.FeedBuffer,
		MaxAttempts:       cfg.Stream.MaxReconnectAttempts,
		BackoffBase:       cfg.Stream.BackoffBase,
		BackoffCap:        cfg.Stream.BackoffCap,
	}, creds, dispatcher, st, metrics, log)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		creds:   creds,
		auth:    auth.NewClient(restClient, creds, log),
		session: sessionAPI,
		manager: manager,
		chat:    chat.NewService(st, manager, metrics, log, cfg.Chat.IncludeReasoning),
	}, nil
}

func (a *app) run(ctx context.Context, opts runOptions) error {
	stdin := bufio.NewScanner(os.Stdin)
	stdin.Buffer(make([]byte, 64*1024), 64*1024)

	if err := a.signIn(ctx, stdin, opts); err != nil {
		return err
	}

	sessionID := opts.sessionID
	if sessionID == "" {
		created, err := a.session.Create(ctx)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = created.SessionID
		fmt.Printf("session %s\n", sessionID)
	}
	a.store.SetSession(sessionID)

	if opts.drawingPath != "" {
		if err := a.uploadDrawing(ctx, sessionID, opts.drawingPath); err != nil {
			return err
		}
	}

	if err := a.manager.Connect(ctx, sessionID); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go a.render(ctx)
	return a.prompt(ctx, stdin)
}

func (a *app) signIn(ctx context.Context, stdin *bufio.Scanner, opts runOptions) error {
	email := opts.email
	if email == "" {
		fmt.Print("email: ")
		if !stdin.Scan() {
			return fmt.Errorf("no email given")
		}
		email = strings.TrimSpace(stdin.Text())
	}

	password := os.Getenv("GROUNDPLAN_PASSWORD")
	if password == "" {
		fmt.Print("password: ")
		if !stdin.Scan() {
			return fmt.Errorf("no password given")
		}
		password = stdin.Text()
	}

	if opts.register {
		if _, err := a.auth.Register(ctx, email, password); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	if err := a.auth.Login(ctx, email, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a.store.SetIdentity(email)
	return nil
}

func (a *app) uploadDrawing(ctx context.Context, sessionID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read drawing: %w", err)
	}
	objects, err := drawing.Decode(data)
	if err != nil {
		return fmt.Errorf("parse drawing: %w", err)
	}

	uploaded, err := a.session.UpdateContext(ctx, sessionID, objects)
	if err != nil {
		return fmt.Errorf("upload drawing: %w", err)
	}
	a.store.SetDrawingObjects(objects)
	fmt.Printf("uploaded %d objects across layers %s\n",
		uploaded.ObjectCount, strings.Join(uploaded.Layers, ", "))
	return nil
}

// prompt reads user input: plain text goes out as a query, lines
// starting with / are commands.
func (a *app) prompt(ctx context.Context, stdin *bufio.Scanner) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for stdin.Scan() {
			lines <- stdin.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := a.handleLine(ctx, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
		}
	}
}

var errQuit = errors.New("quit")

func (a *app) handleLine(ctx context.Context, line string) error {
	switch {
	case line == "":
		return nil

	case line == "/quit" || line == "/exit":
		return errQuit

	case line == "/cancel":
		if err := a.chat.CancelQuery(); err != nil {
			fmt.Printf("cancel: %v\n", err)
		}
		return nil

	case line == "/status":
		snap := a.store.Snapshot()
		fmt.Printf("connection=%s session=%s context_version=%d messages=%d\n",
			snap.Connection, snap.SessionID, snap.ContextVersion, len(snap.Messages))
		if snap.LastError != "" {
			fmt.Printf("last error: %s\n", snap.LastError)
		}
		return nil

	case strings.HasPrefix(line, "/answer "):
		value := strings.TrimSpace(strings.TrimPrefix(line, "/answer "))
		if err := a.chat.RespondToClarification(value, ""); err != nil {
			fmt.Printf("answer: %v\n", err)
		}
		return nil

	default:
		if _, err := a.chat.SendQuery(line); err != nil {
			fmt.Printf("query: %v\n", err)
		}
		return nil
	}
}

// render follows the store and prints conversation progress: the
// reasoning trace, the streaming answer, and pending clarifications.
func (a *app) render(ctx context.Context) {
	updates, cancel := a.store.Subscribe()
	defer cancel()

	var (
		printedSteps  int
		printedRunes  int
		lastPendingID string
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
		}

		snap := a.store.Snapshot()

		for _, step := range snap.Reasoning[min(printedSteps, len(snap.Reasoning)):] {
			fmt.Printf("  [%s] %s\n", step.Status, step.Message)
		}
		if len(snap.Reasoning) < printedSteps {
			printedRunes = 0
		}
		printedSteps = len(snap.Reasoning)

		if streamed := []rune(snap.Streaming); len(streamed) > printedRunes {
			fmt.Print(string(streamed[printedRunes:]))
			printedRunes = len(streamed)
		} else if snap.Streaming == "" && printedRunes > 0 {
			fmt.Println()
			printedRunes = 0
		}

		if snap.Pending != nil && snap.Pending.Request.ID != lastPendingID {
			lastPendingID = snap.Pending.Request.ID
			fmt.Printf("\n? %s\n", snap.Pending.Request.Question)
			for _, opt := range snap.Pending.Request.Options {
				fmt.Printf("    /answer %s  (%s)\n", opt.Value, opt.Label)
			}
		}

		if snap.Connection == store.StatusError && snap.LastError != "" {
			fmt.Printf("\n! %s\n", snap.LastError)
		}
	}
}
