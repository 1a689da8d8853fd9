// Command tg-login performs the one-time interactive Telegram login that
// creates the authorized session file the monitor loads. It prompts for the
// phone number, the login code, and the 2FA password when the account has
// one, then writes the session to SESSION_FILE. Run it once per account;
// after that the monitor reconnects with the stored session on its own.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/dkhv/tg-monitor/internal/config"
)

// promptAuth collects login input from the terminal. Sign-up is rejected:
// this tool authorizes existing accounts only.
type promptAuth struct {
	in *bufio.Reader
}

func (p promptAuth) Phone(_ context.Context) (string, error) {
	return p.ask("Phone number (international format): ")
}

func (p promptAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return p.ask("Login code: ")
}

func (p promptAuth) Password(_ context.Context) (string, error) {
	return p.ask("2FA password: ")
}

func (p promptAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign-up is not supported; use an existing account")
}

func (p promptAuth) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (p promptAuth) ask(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// displayName picks a printable identity for the logged-in account.
func displayName(me *tg.User) string {
	if me.Username != "" {
		return me.Username
	}
	if me.FirstName != "" {
		return me.FirstName
	}
	return "unknown"
}

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	if cfg.Telegram.APIID == 0 || strings.TrimSpace(cfg.Telegram.APIHash) == "" {
		log.Fatal().Msg("TELEGRAM_API_ID and TELEGRAM_API_HASH must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := telegram.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.Telegram.SessionFile},
	})
	flow := auth.NewFlow(promptAuth{in: bufio.NewReader(os.Stdin)}, auth.SendCodeOptions{})

	err := client.Run(ctx, func(ctx context.Context) error {
		fmt.Printf("Session will be saved to: %s\n", cfg.Telegram.SessionFile)
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		me, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("fetch self: %w", err)
		}
		fmt.Printf("Logged in as: %s (id=%d)\n", displayName(me), me.ID)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("login failed")
	}
}
