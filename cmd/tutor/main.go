package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/tutor/internal/catalog"
	"github.com/pavelanni/tutor/internal/handler"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/oracle"
	"github.com/pavelanni/tutor/internal/store"
	"github.com/pavelanni/tutor/internal/tutor"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Adaptive tutoring server powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), catalogCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP tutoring server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "", "SQLite database path for recording sessions (empty = keep sessions in memory only)")
	f.String("catalog", "", "Department catalogue JSON file (empty = built-in)")
	f.String("llm-provider", "openai", "LLM backend (openai, anthropic, gemini, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM backend")
	f.String("llm-model", "", "LLM model name (empty = provider default)")
	f.Bool("llm-schema", false, "Send the JSON schema as the response format (OpenAI-compatible backends)")
	f.Duration("oracle-timeout", 30*time.Second, "Timeout for one LLM call attempt")
	f.Duration("session-ttl", 2*time.Hour, "Idle sessions are evicted after this long")
	f.Int("history-window", prompts.DefaultHistoryWindow, "Recent turns summarised in the question prompt")
	f.StringP("difficulty", "d", string(model.DifficultyMedium), "Default starting difficulty (easy, medium, hard)")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.String("prompts-dir", "", "Directory with prompt templates overriding the built-in ones")
	f.String("admin-password", "", "Initial admin password (or set TUTOR_ADMIN_PASSWORD)")
	f.Bool("debug", false, "Log LLM request and response bodies")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded tutoring sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "tutor.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the department catalogue as JSON",
		RunE:  runCatalog,
	}
	cmd.Flags().String("catalog", "", "Department catalogue JSON file (empty = built-in)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutor")
	v.AddConfigPath("/etc/tutor")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// llmConfig maps the flags onto the provider configuration. --llm-key and
// --llm-model apply to whichever backend is selected.
func llmConfig(v *viper.Viper) llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Provider = strings.ToLower(strings.TrimSpace(v.GetString("llm-provider")))
	cfg.Debug = v.GetBool("debug")
	cfg.Retry.AttemptTimeout = v.GetDuration("oracle-timeout")

	key, modelName := v.GetString("llm-key"), v.GetString("llm-model")
	switch cfg.Provider {
	case "openai":
		cfg.OpenAI.APIKey = key
		cfg.OpenAI.BaseURL = v.GetString("llm-url")
		cfg.OpenAI.SchemaFormat = v.GetBool("llm-schema")
		if modelName != "" {
			cfg.OpenAI.Model = modelName
		}
	case "anthropic":
		cfg.Anthropic.APIKey = key
		if modelName != "" {
			cfg.Anthropic.Model = modelName
		}
	case "gemini":
		cfg.Gemini.APIKey = key
		if modelName != "" {
			cfg.Gemini.Model = modelName
		}
	case "mock":
		cfg.Mock = oracle.NewDemoProvider()
	}
	return cfg
}

// oracleBudget is the whole time one Oracle call may take: every attempt
// plus the longest backoff between them.
func oracleBudget(r llm.RetryConfig) time.Duration {
	return time.Duration(r.MaxAttempts)*r.AttemptTimeout + r.MaxWait
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the session recorder when a database is configured.
	var (
		db       *store.Store
		journal  tutor.Journal
		recorder llm.Recorder
	)
	if path := v.GetString("db"); path != "" {
		var err error
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		journal, recorder = db, db

		if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cat, err := catalog.Load(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if dir := v.GetString("prompts-dir"); dir != "" {
		if err := prompts.Load(os.DirFS(dir)); err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		slog.Info("loaded prompt templates", "dir", dir)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	initial, err := model.ParseDifficulty(v.GetString("difficulty"))
	if err != nil {
		return err
	}

	// Create the LLM provider.
	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg, recorder)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	if p, ok := provider.(llm.Pinger); ok && llmCfg.Provider != "mock" {
		pingCtx, cancel := context.WithTimeout(ctx, llmCfg.Retry.AttemptTimeout)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
	}
	slog.Info("LLM provider ready", "provider", llmCfg.Provider, "model", provider.ModelID())

	if db != nil {
		if err := db.SetRunInfo(promptVariant, provider.ModelID()); err != nil {
			return fmt.Errorf("record run info: %w", err)
		}
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	tutorCfg := model.TutorConfig{
		InitialDifficulty: initial,
		HistoryWindow:     v.GetInt("history-window"),
		OracleTimeout:     oracleBudget(llmCfg.Retry),
		SessionTTL:        v.GetDuration("session-ttl"),
		BasePath:          basePath,
		SecureCookies:     v.GetBool("secure-cookies"),
		PromptVariant:     promptVariant,
		Debug:             llmCfg.Debug,
	}

	orch := tutor.New(oracle.NewLLM(provider, prompts.PromptVariant(promptVariant)), journal, tutor.Config{
		OracleTimeout: tutorCfg.OracleTimeout,
		SessionTTL:    tutorCfg.SessionTTL,
		HistoryWindow: tutorCfg.HistoryWindow,
	})
	go orch.RunJanitor(ctx)
	if db != nil {
		go purgeAuthSessions(ctx, db)
	}

	h, err := handler.New(orch, db, cat, tutorCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2*tutorCfg.OracleTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"provider", llmCfg.Provider,
		"model", provider.ModelID(),
		"lang", lang,
		"difficulty", initial,
		"prompt_variant", promptVariant,
		"oracle_timeout", llmCfg.Retry.AttemptTimeout,
		"session_ttl", tutorCfg.SessionTTL,
		"recording", db != nil,
		"base_path", basePath,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// purgeAuthSessions drops expired instructor logins once an hour.
func purgeAuthSessions(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpiredAuthSessions(ctx)
			if err != nil {
				slog.Warn("failed to purge auth sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired auth sessions", "count", n)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	return writeJSON(v.GetString("output"), export)
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	cat, err := catalog.Load(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	return writeJSON("-", cat)
}

func writeJSON(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		slog.Warn("no instructor accounts and no admin password; review pages stay locked",
			"hint", "set --admin-password or TUTOR_ADMIN_PASSWORD")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
