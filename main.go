package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hamup/commands"
	"hamup/internal/config"
	"hamup/internal/creds"
	"hamup/internal/result"
)

const hamup = "hamup"

const version = "1.1.0"

func main() {
	var configPath string
	var cfg config.Config

	rootCmd := cobra.Command{
		Use:     hamup,
		Short:   "Upload images to a hamster image host",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	uploadCmd := cobra.Command{
		Use:   "upload [paths...]",
		Short: "Upload images and record the hosted URLs",
		Long: `Upload images to the configured hamster site.
Single mode uploads each given file and writes one result file next to it.
Group mode uploads every image directly under one folder and writes one
aggregate result file into the folder. With no arguments, working_path
from the config is used.`,
		Args: cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			modeFlag, err := cmd.Flags().GetString("mode")
			if err != nil {
				fmt.Fprintln(os.Stderr, "error: invalid mode flag:", err)
				os.Exit(1)
			}
			paths, mode, err := commands.ResolveTargets(args, modeFlag, cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}

			policyFlag, err := cmd.Flags().GetString("on-existing")
			if err != nil {
				fmt.Fprintln(os.Stderr, "error: invalid on-existing flag:", err)
				os.Exit(1)
			}
			policy, err := result.ParsePolicy(policyFlag)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}

			apiKey, _ := cmd.Flags().GetString("api-key")
			albumID, _ := cmd.Flags().GetString("album")

			err = commands.Upload(context.Background(), cfg, commands.UploadOptions{
				Paths:     paths,
				Mode:      mode,
				Policy:    policy,
				Overrides: creds.Overrides{APIKey: apiKey, AlbumID: albumID},
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
		},
	}
	uploadCmd.Flags().StringP("mode", "m", "", "Upload mode: single or group (defaults to upload_mode in config)")
	uploadCmd.Flags().String("on-existing", "ask", "What to do when a result file exists: ask, skip or overwrite")
	uploadCmd.Flags().String("api-key", "", "Override the stored API key for this run")
	uploadCmd.Flags().String("album", "", "Override the stored album id for this run")
	rootCmd.AddCommand(&uploadCmd)

	configureCmd := cobra.Command{
		Use:   "configure",
		Short: "Save settings and credentials",
		Long: `Save settings to config.json and credentials to creds.secret.
Only the flags you pass are updated; everything else keeps its stored value.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts := commands.ConfigureOptions{}
			opts.WorkingPath, _ = cmd.Flags().GetString("working-path")
			opts.UploadMode, _ = cmd.Flags().GetString("mode")
			opts.SiteURL, _ = cmd.Flags().GetString("site-url")
			opts.APIKey, _ = cmd.Flags().GetString("api-key")
			opts.AlbumID, _ = cmd.Flags().GetString("album")

			if err := commands.Configure(cfg, opts); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
		},
	}
	configureCmd.Flags().String("working-path", "", "Default file or folder for upload runs")
	configureCmd.Flags().StringP("mode", "m", "", "Default upload mode: single or group")
	configureCmd.Flags().String("site-url", "", "Base URL of the hamster site")
	configureCmd.Flags().String("api-key", "", "API key to store")
	configureCmd.Flags().String("album", "", "Album id to store")
	rootCmd.AddCommand(&configureCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
