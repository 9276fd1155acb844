package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	configFile string
	debugMode  bool
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "banner-writer",
	Short: "Generate banner images for blog articles",
	Long: `Scans the articles directory for posts marked "nobanner: true", renders a
banner image for each and points the article's front matter at it.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		processor, _, err := setupProcessor()
		if err != nil {
			return err
		}

		if _, err := processor.Run(ctx); err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Generate banners as articles are created or saved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		processor, logger, err := setupProcessor()
		if err != nil {
			return err
		}

		// Catch up on anything marked while the watcher was not running
		if _, err := processor.Run(ctx); err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}

		watcher, err := NewArticleWatcher(processor, logger)
		if err != nil {
			return err
		}
		return watcher.Start(ctx)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, created, err := ensureConfigExists(defaultConfigDir)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
		}
		return nil
	},
}

func setupProcessor() (*BannerProcessor, *log.Logger, error) {
	logger := newLogger(os.Stderr, debugMode, logJSON)

	settings, err := LoadSettings(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}

	fs := afero.NewOsFs()
	renderer, err := NewTextRenderer(fs, logger)
	if err != nil {
		return nil, nil, err
	}

	processor, err := NewBannerProcessor(settings, fs, renderer, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating processor: %w", err)
	}
	return processor, logger, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to settings file (default .banner-writer/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(watchCmd, initCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
