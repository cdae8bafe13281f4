package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/external/telegram"
)

// InitDataOptions holds flags for "initdata sign" and "initdata verify".
type InitDataOptions struct {
	Token     string
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	AuthDate  int64
	MaxAge    time.Duration
}

// NewInitDataCommand creates the initdata command group. It signs and checks
// Mini App payloads for local testing against a bot token.
func NewInitDataCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initdata",
		Short: "Sign and verify Telegram Mini App initData",
	}
	cmd.AddCommand(newInitDataSignCommand(rootOpts))
	cmd.AddCommand(newInitDataVerifyCommand(rootOpts))
	return cmd
}

func newInitDataSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitDataOptions{}

	cmd := &cobra.Command{
		Use:          "sign",
		Short:        "Print a signed initData query string",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := resolveToken(rootOpts, opts.Token)
			if err != nil {
				return err
			}
			raw, err := SignInitData(token, opts, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "bot token (default: TELEGRAM_BOT_TOKEN)")
	cmd.Flags().Int64Var(&opts.UserID, "user-id", 0, "Telegram user id")
	cmd.Flags().StringVar(&opts.Username, "username", "", "Telegram username")
	cmd.Flags().StringVar(&opts.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&opts.LastName, "last-name", "", "last name")
	cmd.Flags().Int64Var(&opts.AuthDate, "auth-date", 0, "auth_date unix seconds (default: now)")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func newInitDataVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitDataOptions{}

	cmd := &cobra.Command{
		Use:          "verify <init-data>",
		Short:        "Check an initData string and print the identity",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := resolveToken(rootOpts, opts.Token)
			if err != nil {
				return err
			}
			identity, err := telegram.NewInitDataVerifier(token, telegram.WithMaxAge(opts.MaxAge)).Verify(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(identity)
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "bot token (default: TELEGRAM_BOT_TOKEN)")
	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", 0, "reject payloads older than this (0 disables)")

	return cmd
}

// SignInitData builds and signs an initData payload for opts.
func SignInitData(token string, opts *InitDataOptions, now time.Time) (string, error) {
	if opts.UserID <= 0 {
		return "", errors.New("--user-id must be positive")
	}
	user, err := json.Marshal(account.Identity{
		TelegramID: account.TelegramID(opts.UserID),
		Username:   opts.Username,
		FirstName:  opts.FirstName,
		LastName:   opts.LastName,
	})
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}

	authDate := opts.AuthDate
	if authDate == 0 {
		authDate = now.Unix()
	}

	values := url.Values{}
	values.Set("user", string(user))
	values.Set("auth_date", strconv.FormatInt(authDate, 10))
	return telegram.Sign(token, values)
}

// resolveToken prefers the flag and falls back to the configured bot token.
func resolveToken(rootOpts *RootOptions, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return "", err
	}
	if cfg.Telegram.BotToken == "" {
		return "", errors.New("bot token is required: pass --token or set TELEGRAM_BOT_TOKEN")
	}
	return cfg.Telegram.BotToken, nil
}
