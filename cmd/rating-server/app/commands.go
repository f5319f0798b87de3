// Package app provides the command line interface for the rating server.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/panorama-game/rating-server/internal/config"
	"github.com/panorama-game/rating-server/internal/versions"
)

// NewRootCmd creates the root command with the serve and version subcommands.
// Flags are bound to viper so every flag can also be set as RATING_SERVER_<FLAG>.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "rating-server",
		DisableAutoGenTag: true,
		Short:             "Player rating leaderboard server",
		Long: `rating-server periodically loads player ratings from a configured source,
ranks them into an immutable snapshot and serves paginated and searchable
leaderboard reads over HTTP.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newViper returns a viper instance reading RATING_SERVER_* environment variables
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to read format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "rating-server %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
