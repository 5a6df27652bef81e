package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"distill-client/internal/config"
	"distill-client/internal/handler"
	"distill-client/internal/model"
	"distill-client/internal/service"
	"distill-client/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "distill",
		Short:         "Study session client with a local bridge for the web UI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")

	root.AddCommand(
		newServeCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newSessionsCommand(),
		newAskCommand(),
		newBackupCommand(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config, initializes logging and builds the app.
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Printf("Failed to init logger: %v", err)
	}
	return newApp(cfg)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local bridge API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.start(cmd.Context(), false); err != nil {
				return err
			}

			gin.DefaultWriter = logger.Writer()
			bridge := handler.NewBridgeHandler(a.auth, a.sessions, a.orch, a.store, a.slot, a.cache)
			router := handler.NewRouter(a.cfg, bridge)

			server := &http.Server{
				Addr:           fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:        router,
				ReadTimeout:    a.cfg.Server.ReadTimeout,
				WriteTimeout:   a.cfg.Server.WriteTimeout,
				MaxHeaderBytes: a.cfg.Server.MaxHeaderBytes,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Bridge listening on port %d", a.cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return fmt.Errorf("bridge server: %w", err)
			case <-quit:
			}

			logger.Info("Shutting down bridge...")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Errorf("Bridge shutdown failed: %v", err)
				return server.Close()
			}
			logger.Info("Bridge stopped")
			return nil
		},
	}
}

func newLoginCommand() *cobra.Command {
	var email, username, password string
	var signup bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			var user model.User
			if signup {
				user, err = a.auth.Signup(cmd.Context(), email, username, password)
			} else {
				user, err = a.auth.Login(cmd.Context(), email, password)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", displayName(user), user.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "display name, used with --signup")
	cmd.Flags().StringVar(&password, "password", os.Getenv("DISTILL_PASSWORD"), "account password")
	cmd.Flags().BoolVar(&signup, "signup", false, "create the account first")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted token and cached sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			a.auth.Restore()
			a.auth.Logout(cmd.Context())
			a.sessions.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.start(cmd.Context(), true); err != nil {
				return err
			}

			snap := a.store.Snapshot()
			if snap.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Showing cached sessions: %s\n", snap.Error)
			}
			out := cmd.OutOrStdout()
			for _, s := range snap.Sessions {
				marker := " "
				if s.ID == snap.ActiveSessionID {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-12s %-50s %3d  %s\n", marker, s.ID, s.Title, s.MessageCount, s.CreatedAt.Format(time.DateOnly))
			}
			if len(snap.Sessions) == 0 {
				fmt.Fprintln(out, "No sessions")
			}
			return nil
		},
	}
}

func newAskCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message in the active session, or a new one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.start(ctx, true); err != nil {
				return err
			}
			if sessionID != "" {
				if err := a.sessions.ActivateSession(ctx, sessionID); err != nil {
					return err
				}
			}

			res, err := a.orch.Submit(ctx, strings.Join(args, " "), nil)
			out := cmd.OutOrStdout()
			switch res.State {
			case service.TurnClassified:
				h, _ := a.slot.Take(res.Route)
				fmt.Fprintln(out, describeHandoff(h))
			case service.TurnAppended, service.TurnFailed:
				if res.Message != nil {
					fmt.Fprintln(out, res.Message.Content)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to use instead of the active one")
	return cmd
}

func newBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			return a.backend.Backup()
		},
	}
}

func displayName(u model.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

func describeHandoff(h model.Handoff) string {
	switch {
	case h.Quiz != nil:
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%d questions)\n", h.Quiz.Name, len(h.Quiz.Questions))
		for i, q := range h.Quiz.Questions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
			for j, opt := range q.Options {
				fmt.Fprintf(&b, "   %c) %s\n", 'a'+j, opt)
			}
		}
		return strings.TrimRight(b.String(), "\n")
	case h.Flashcards != nil:
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%d cards)\n", h.Flashcards.Name, len(h.Flashcards.Cards))
		for _, c := range h.Flashcards.Cards {
			fmt.Fprintf(&b, "- %s: %s\n", c.Front, c.Back)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return "Nothing to show"
}
