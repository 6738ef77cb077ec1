package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	lyricmr "github.com/emptyOVO/lyricmr-go"
)

func main() {
	var (
		cfgPath string
		level   string
		cfg     lyricmr.Config
	)

	rootCmd := &cobra.Command{
		Use:   "lyricmr",
		Short: "Word and per-artist song aggregation over lyric datasets",
		Long: `lyricmr splits a four-column song dataset (artist, song, link, lyrics)
across N participants, counts word and per-artist song frequencies in
parallel, merges the partial tables, and writes ranked CSV reports plus a
metrics summary. It runs single-process, or as one coordinator plus TCP
workers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("log level %q: %w", level, err)
			}
			log.SetLevel(lvl)
			if cfgPath == "" {
				return nil
			}
			base, err := lyricmr.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			// Flags given on the command line win over the file.
			applyBase(&cfg, base)
			if !cmd.Flags().Changed("workers") && base.Workers != 0 {
				cfg.Workers = base.Workers
			}
			if !cmd.Flags().Changed("apostrophe") {
				cfg.Token.Apostrophe = base.Token.Apostrophe
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&level, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Input, "input", "i", "", "Input dataset (CSV)")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputDir, "output", "o", "", "Output directory")
	rootCmd.PersistentFlags().StringVarP(&cfg.Mode, "mode", "m", "", "Partitioning mode (push|range)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "w", 3, "Number of workers beyond the coordinator")
	rootCmd.PersistentFlags().StringVar(&cfg.Listen, "listen", "", "Coordinator listen address")
	rootCmd.PersistentFlags().IntVar(&cfg.WordLimit, "word-limit", 0, "Ranked words to report (0 = default 100)")
	rootCmd.PersistentFlags().IntVar(&cfg.ArtistLimit, "artist-limit", 0, "Ranked artists to report (0 = default 50)")
	rootCmd.PersistentFlags().Int64Var(&cfg.MaxRecords, "max-records", 0, "Cap on records per run, 0 = unlimited")
	rootCmd.PersistentFlags().BoolVar(&cfg.Token.Apostrophe, "apostrophe", true, "Treat apostrophes as part of words")
	rootCmd.PersistentFlags().IntVar(&cfg.Token.MinLen, "min-word-len", 0, "Minimum token length to count")
	rootCmd.PersistentFlags().StringVar(&cfg.Sentiment.Script, "sentiment-script", "", "Classifier script; empty disables sentiment")
	rootCmd.PersistentFlags().StringVar(&cfg.StorePath, "store", "", "SQLite file for run history (optional)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run coordinator and workers inside one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := lyricmr.RunLocal(context.Background(), cfg)
			if err != nil {
				return err
			}
			log.Infof("[Run] finished: %d songs, %d distinct top words reported",
				summary.Songs, len(summary.TopWords))
			return nil
		},
	}

	coordinatorCmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Listen for workers and drive a distributed run",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := lyricmr.RunCoordinator(context.Background(), cfg)
			return err
		},
	}

	var coordinatorAddr string
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Join a coordinator and process one share",
		RunE: func(cmd *cobra.Command, args []string) error {
			return lyricmr.RunWorker(context.Background(), coordinatorAddr)
		},
	}
	workerCmd.Flags().StringVarP(&coordinatorAddr, "addr", "a", "127.0.0.1:10000", "Coordinator address")

	rootCmd.AddCommand(runCmd, coordinatorCmd, workerCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyBase fills cfg fields still at their zero value from the config file.
func applyBase(cfg *lyricmr.Config, base lyricmr.Config) {
	if cfg.Input == "" {
		cfg.Input = base.Input
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = base.OutputDir
	}
	if cfg.Mode == "" {
		cfg.Mode = base.Mode
	}
	if cfg.Listen == "" {
		cfg.Listen = base.Listen
	}
	if cfg.WordLimit == 0 {
		cfg.WordLimit = base.WordLimit
	}
	if cfg.ArtistLimit == 0 {
		cfg.ArtistLimit = base.ArtistLimit
	}
	if cfg.MaxRecords == 0 {
		cfg.MaxRecords = base.MaxRecords
	}
	if cfg.Token.MinLen == 0 {
		cfg.Token.MinLen = base.Token.MinLen
	}
	if cfg.Sentiment.Script == "" {
		cfg.Sentiment.Script = base.Sentiment.Script
	}
	if cfg.StorePath == "" {
		cfg.StorePath = base.StorePath
	}
}
