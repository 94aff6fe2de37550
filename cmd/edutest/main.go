package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/edutest/internal/authoring"
	"github.com/pavelanni/edutest/internal/handler"
	appI18n "github.com/pavelanni/edutest/internal/i18n"
	"github.com/pavelanni/edutest/internal/llm"
	"github.com/pavelanni/edutest/internal/model"
	"github.com/pavelanni/edutest/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "edutest",
		Short: "Classroom multiple-choice testing server",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `edutest --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "edutest.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default message language (en, tr)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tr)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins for a separately hosted frontend (repeatable)")
	f.String("admin-email", "admin@example.com", "Email of the seeded admin account")
	f.String("admin-password", "", "Initial admin password (or set EDUTEST_ADMIN_PASSWORD)")
	f.Bool("simulate-latency", false, "Wrap the store with artificial latency and transient failures")
	f.Duration("latency-min", 400*time.Millisecond, "Minimum simulated store latency")
	f.Duration("latency-max", 1200*time.Millisecond, "Maximum simulated store latency")
	f.Float64("failure-rate", 0.05, "Probability of a simulated transient store failure")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables question drafting)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create an inactive test from a JSON question file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "edutest.db", "SQLite database path")
	f.String("teacher", "", "Email of the owning teacher (required)")
	f.String("title", "", "Test title (defaults to the file name)")
	f.Bool("allow-multiple-attempts", true, "Let students take the test more than once")
	f.Bool("randomize-questions", false, "Shuffle question order per attempt")
	f.Bool("randomize-options", false, "Shuffle option order per attempt")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempt results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "edutest.db", "SQLite database path")
	f.String("teacher", "", "Only export tests of the teacher with this email")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

// setupLogging installs the default slog logger. Unknown levels fall back to info.
func setupLogging(v *viper.Viper) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(v.GetString("log-format"), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EDUTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("edutest")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/edutest")
	v.AddConfigPath("/etc/edutest")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-email"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var records handler.Store = db
	if v.GetBool("simulate-latency") {
		opts := store.SimOptions{
			MinLatency:  v.GetDuration("latency-min"),
			MaxLatency:  v.GetDuration("latency-max"),
			FailureRate: v.GetFloat64("failure-rate"),
		}
		records = store.Simulate(db, opts)
		slog.Info("simulating store latency", "min", opts.MinLatency, "max", opts.MaxLatency, "failure_rate", opts.FailureRate)
	}

	var drafter handler.Drafter
	if url := v.GetString("llm-url"); url != "" {
		client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), lang)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		drafter = client
		slog.Info("question drafting enabled", "url", url, "model", v.GetString("llm-model"))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(records, drafter, model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token", "Accept-Language"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"languages", appI18n.Languages(),
		"base_path", basePath,
		"drafting", drafter != nil,
	)
	return http.ListenAndServe(addr, r)
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	teacher, err := db.GetUserByEmail(v.GetString("teacher"))
	if err != nil {
		return fmt.Errorf("look up teacher: %w", err)
	}
	if teacher == nil || teacher.Role != model.UserRoleTeacher {
		return fmt.Errorf("no teacher with email %q", v.GetString("teacher"))
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" {
		slog.Warn("questions file changed since last import, importing as a new test", "path", path)
	}

	questions, err := authoring.ParseImport(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	title := v.GetString("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	t, err := authoring.Prepare(model.Test{
		TeacherID:             teacher.ID,
		Title:                 title,
		Questions:             questions,
		Visibility:            model.VisibilityPublic,
		AllowMultipleAttempts: v.GetBool("allow-multiple-attempts"),
		RandomizeQuestions:    v.GetBool("randomize-questions"),
		RandomizeOptions:      v.GetBool("randomize-options"),
	}, nil)
	if err != nil {
		return fmt.Errorf("validate test: %w", err)
	}
	saved, err := db.UpsertTest(ctx, t)
	if err != nil {
		return fmt.Errorf("save test: %w", err)
	}

	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported test", "path", path, "test_id", saved.ID, "questions", len(saved.Questions))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var teacherID string
	if email := v.GetString("teacher"); email != "" {
		teacher, err := db.GetUserByEmail(email)
		if err != nil {
			return fmt.Errorf("look up teacher: %w", err)
		}
		if teacher == nil {
			return fmt.Errorf("no user with email %q", email)
		}
		teacherID = teacher.ID
	}

	export, err := db.ExportResults(context.Background(), teacherID)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	w, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer w.Close()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported results", "tests", len(export.Tests))
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openOutput returns stdout for "" or "-", otherwise a new file at path.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// seedAdmin creates the admin account on first start. The password is only needed while
// no account with adminEmail exists.
func seedAdmin(db *store.Store, email, password string) error {
	existing, err := db.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if password == "" {
		if count > 0 {
			return nil
		}
		return fmt.Errorf("admin password is required: set --admin-password flag or EDUTEST_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded admin user", "email", email)
	return nil
}
