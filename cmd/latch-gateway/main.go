// ABOUTME: Entry point for the latch-gateway door controller daemon
// ABOUTME: Runs the polling coordinator, the web UI and the Telegram channel

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/2389/latch-gateway/internal/auth"
	"github.com/2389/latch-gateway/internal/config"
	"github.com/2389/latch-gateway/internal/controller"
	"github.com/2389/latch-gateway/internal/conversation"
	"github.com/2389/latch-gateway/internal/directory"
	"github.com/2389/latch-gateway/internal/door"
	"github.com/2389/latch-gateway/internal/enroll"
	"github.com/2389/latch-gateway/internal/history"
	"github.com/2389/latch-gateway/internal/periph"
	"github.com/2389/latch-gateway/internal/storage"
	"github.com/2389/latch-gateway/internal/telegram"
	"github.com/2389/latch-gateway/internal/webadmin"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _       _       _
| | __ _| |_ ___| |__         __ _  __ _| |_ _____      ____ _ _   _
| |/ _' | __/ __| '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | (_| | || (__| | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_|\__,_|\__\___|_| |_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                             |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: LATCH_CONFIG env var > XDG_CONFIG_HOME/latch/gateway.yaml > ~/.config/latch/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LATCH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "latch", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: latch-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the door controller")
		fmt.Println("  hash      Generate a bcrypt hash for the admin password")
		fmt.Println("  health    Check controller health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "hash":
		err = runHash()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Storage:  %s\n", cfg.Storage.Dir)
	if cfg.Telegram.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Telegram: ")
		cyan.Print("enabled")
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting latch-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"storage_dir", cfg.Storage.Dir,
	)

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Peripherals. The sims stand in for the strike, the sensor, the
	// reader and the LED; the web UI and chat channel drive them.
	bus := periph.NewBus(nil)
	reader := &periph.SimTagReader{}
	sensor := &periph.SimDoorSensor{}
	relay := &periph.SimRelay{}
	indicatorOut := &periph.SimIndicator{}
	clock := &periph.SystemClock{}
	clock.MarkSynced()

	// Storage
	rosterFile := storage.NewFile(filepath.Join(cfg.Storage.Dir, cfg.Storage.RosterFile), bus)
	if err := rosterFile.EnsureHeader(directory.Header); err != nil {
		return fmt.Errorf("preparing roster file: %w", err)
	}
	historyFile := storage.NewFile(filepath.Join(cfg.Storage.Dir, cfg.Storage.HistoryFile), bus)
	if err := historyFile.EnsureHeader(history.Header); err != nil {
		return fmt.Errorf("preparing history file: %w", err)
	}

	dir := directory.New(rosterFile, logger)
	if err := dir.Load(); err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}
	hist := history.New(historyFile, logger)
	if err := hist.Load(); err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	logger.Info("records loaded", "users", dir.Len(), "events", hist.Len())

	// Chat channel
	var chat controller.Messenger
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram.BotToken, logger)
		if err != nil {
			return fmt.Errorf("connecting telegram bot: %w", err)
		}
		chat = tg
	}

	// Core state and flows
	state := &door.State{}
	indicator := door.NewIndicator(indicatorOut, logger)
	enrollFlow := enroll.New(dir, logger)

	ctrl := controller.New(controller.Deps{
		Directory: dir,
		History:   hist,
		State:     state,
		Indicator: indicator,
		Enroll:    enrollFlow,
		Chat:      chat,
		Reader:    reader,
		Sensor:    sensor,
		Relay:     relay,
		Clock:     clock,
		Logger:    logger,
	}, controller.Config{
		FastTick:      cfg.Controller.FastTick,
		SlowTick:      cfg.Controller.SlowTick,
		GrantDuration: cfg.Controller.GrantDuration,
		EnrollTimeout: cfg.Controller.EnrollTimeout,
		AdminSession:  cfg.Telegram.AdminChatID,
	})
	convo := conversation.New(dir, ctrl.StatusText, cfg.Controller.ConversationTimeout, logger)
	ctrl.AttachConversation(convo)

	// Web layer
	sessions, err := auth.NewSessions([]byte(cfg.Admin.SessionSecret), 0)
	if err != nil {
		return fmt.Errorf("creating session signer: %w", err)
	}
	web := webadmin.New(dir, hist, ctrl, sessions, []byte(cfg.Admin.PasswordHash))
	if cfg.Sim.InjectAPI {
		web.EnableSimInjection(reader, sensor)
	}
	mux := http.NewServeMux()
	web.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		errCh <- ctrl.Run(ctx)
	}()

	ctrl.NotifyAdmin("🔐 Door controller online.")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("component failed", "error", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}

// runHash prompts for a password and prints its bcrypt hash for the
// admin.password_hash config key.
func runHash() error {
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if len(pw) == 0 {
		return errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(newTTYHandler(os.Stdout, level))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ttyHandler renders compact colorized lines for interactive runs. The
// component attribute becomes a bracketed tag; group names flatten into
// dotted attr keys.
type ttyHandler struct {
	mu     *sync.Mutex // shared across clones so lines never interleave
	out    io.Writer
	level  slog.Level
	attrs  string // preformatted attrs inherited via With
	prefix string
}

func newTTYHandler(out io.Writer, level slog.Level) *ttyHandler {
	return &ttyHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func (h *ttyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint("ERR")
	case l >= slog.LevelWarn:
		return color.YellowString("WRN")
	case l >= slog.LevelInfo:
		return color.CyanString("INF")
	default:
		return color.MagentaString("DBG")
	}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if key == "component" {
		b.WriteString(" " + color.GreenString("["+a.Value.String()+"]"))
		return
	}
	b.WriteString(color.HiBlackString(" " + key + "="))
	b.WriteString(a.Value.String())
}

func (h *ttyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *ttyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	clone := *h
	clone.attrs = b.String()
	return &clone
}

func (h *ttyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.prefix != "" {
		clone.prefix += "." + name
	} else {
		clone.prefix = name
	}
	return &clone
}
