// Command counsel is an interactive terminal client for the 7Edu counselor API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/peterh/liner"
	"github.com/sevenedu/counselor/internal/client"
	"github.com/sevenedu/counselor/internal/store"
	"github.com/sevenedu/counselor/internal/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "counsel:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		serverURL = flag.String("server", envOr("COUNSEL_SERVER", "http://localhost:8080"), "counselor API base URL")
		dbPath    = flag.String("db", envOr("COUNSEL_DB", defaultDBPath()), "local state database")
		together  = flag.Bool("together", false, "use Together AI once onboarding is complete")
		noStream  = flag.Bool("no-stream", false, "wait for full replies and render them as markdown")
		basic     = flag.Bool("basic", false, "start in basic mode")
		timeout   = flag.Duration("timeout", client.DefaultTimeout, "per-request timeout")
		verbose   = flag.Bool("v", false, "log warnings to stderr")
	)
	flag.Parse()

	level := slog.LevelError
	if *verbose {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := store.NewSQLite(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	st, err := state.Load(ctx, db, logger)
	if err != nil {
		return err
	}

	opts := []client.Option{client.WithTimeout(*timeout), client.WithLogger(logger)}
	if *together {
		opts = append(opts, client.WithProvider(client.ProviderTogether))
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}

	s := &session{
		st:       st,
		api:      client.New(*serverURL, opts...),
		out:      os.Stdout,
		stream:   !*noStream,
		advanced: !*basic,
		render: func(md string) string {
			out, err := renderer.Render(md)
			if err != nil {
				return md + "\n"
			}
			return out
		},
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	// Ctrl+C while a reply is streaming cancels the request; at the
	// prompt liner reports it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			s.Interrupt()
		}
	}()

	if err := s.ensureProfile(ctx, line); err != nil {
		if isExit(err) {
			return nil
		}
		return err
	}
	if _, ok := st.CurrentChat(); !ok {
		c, err := st.CreateChat(ctx, s.profileName())
		if err != nil {
			return err
		}
		fmt.Println(c.Messages[0].Content)
	}
	fmt.Println("Type /help for commands.")

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if isExit(err) {
				fmt.Println()
				return nil
			}
			return err
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		start := time.Now()
		err = s.Handle(ctx, input)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintln(os.Stderr, "error:", err)
		default:
			logger.Debug("Handled input", "elapsed", time.Since(start))
		}
	}
}

func isExit(err error) bool {
	return errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "counsel", "state.db")
	}
	return filepath.Join(home, ".counsel", "state.db")
}
