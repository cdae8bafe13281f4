package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alphawulf/alphawulf-hub/internal/application/catalog"
	"github.com/alphawulf/alphawulf-hub/internal/application/command"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/seed"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	File      string
	Overwrite bool
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the achievement catalog into the store",
		Long: `Insert the achievement catalog (embedded defaults or --file YAML)
into the store. Existing definitions are kept unless --overwrite is set.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := seed.Load(opts.File)
			if err != nil {
				return err
			}
			return withStore(cmd, rootOpts, schemaAuto, func(ctx context.Context, b *backend) error {
				h := command.NewSeedAchievementsHandler(b.Catalog, nil)
				res, err := h.Handle(ctx, command.SeedAchievementsCommand{Catalog: defs, Overwrite: opts.Overwrite})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted=%d updated=%d skipped=%d\n", res.Inserted, res.Updated, res.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "YAML catalog file (default: embedded catalog)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace existing definitions")

	return cmd
}

// NewGrantCommand creates the grant command for manual achievements.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "grant <telegram-id> <achievement>",
		Short:        "Grant a manual achievement to a user",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			telegramID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || telegramID <= 0 {
				return fmt.Errorf("invalid telegram id %q", args[0])
			}
			name := args[1]

			return withStore(cmd, rootOpts, schemaAuto, func(ctx context.Context, b *backend) error {
				acc, err := b.Accounts.GetByTelegramID(ctx, account.TelegramID(telegramID))
				if err != nil {
					return fmt.Errorf("lookup account: %w", err)
				}

				h := command.NewGrantAchievementHandler(b.Progress, catalog.NewProvider(b.Catalog, 0, nil), command.AwardExperienceConfig{})
				res, err := h.Handle(ctx, command.GrantAchievementCommand{AccountID: acc.ID, Name: name})
				if err != nil {
					return err
				}
				if res.Granted {
					fmt.Fprintf(cmd.OutOrStdout(), "granted %q to %d\n", name, telegramID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%d already has %q\n", telegramID, name)
				}
				return nil
			})
		},
	}
}
