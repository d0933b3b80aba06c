package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/config"
	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/frontmatter"
	"github.com/TobiSchelling/autoblog/internal/logging"
	"github.com/TobiSchelling/autoblog/internal/pipeline"
	"github.com/TobiSchelling/autoblog/internal/schedule"
	"github.com/TobiSchelling/autoblog/internal/server"
	"github.com/TobiSchelling/autoblog/internal/topics"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "autoblog",
	Short:        "Automated blog article generator",
	Long:         "autoblog writes articles with an LLM, reconciles their metadata, renders a cover and publishes both in one commit.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		l, err := logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autoblog", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/autoblog/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose an LLM provider and a publish target.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show round history and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", database.GetToday())
		fmt.Println("Rounds:")
		fmt.Printf("  Total: %d\n", stats.TotalRounds)
		fmt.Printf("  Published: %d\n", stats.Published)
		fmt.Printf("  Failed: %d\n", stats.Failed)
		if stats.LastRef != "" {
			fmt.Printf("  Last ref: %s\n", stats.LastRef)
		}
		fmt.Printf("\nTopics used: %d\n", stats.UsedTopics)

		fmt.Println("\nConfiguration:")
		fmt.Printf("  LLM provider: %s\n", cfg.LLM.Provider)
		fmt.Printf("  Fallback policy: %s\n", policyName(cfg.Article.Policy))
		switch cfg.Publish.Target {
		case "github":
			fmt.Printf("  Publish: github %s/%s@%s\n", cfg.Publish.Owner, cfg.Publish.Repo, cfg.Publish.Branch)
		default:
			fmt.Printf("  Publish: local %s\n", cfg.LocalPublishDir())
		}
		if cfg.Schedule.Enabled {
			fmt.Printf("  Schedule: %q, %d round(s)\n", cfg.Schedule.Spec, cfg.Schedule.Count)
		} else {
			fmt.Println("  Schedule: disabled")
		}
		return nil
	},
}

// --- generate command ---

var (
	genCount      int
	genPrompt     string
	genTags       []string
	genDate       string
	genSourceURL  string
	genFromTopics bool
	genDryRun     bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and publish one or more articles",
	Long: `Generate runs --count rounds one after another. Each round writes an article,
reconciles its metadata, renders a cover and publishes both files in one commit.
The batch stops at the first failed round.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		genPrompt = strings.TrimSpace(genPrompt)
		if genPrompt == "" && !genFromTopics {
			return errors.New("either --prompt or --from-topics is required")
		}
		tags := genTags
		if !cmd.Flags().Changed("tag") {
			tags = cfg.Article.DefaultTags
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runner, err := pipeline.FromConfig(cfg, db, genDryRun, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Generating %d article(s), publishing to %s.\n", max(genCount, 1), runner.PublisherName())
		report := runner.Run(ctx, pipeline.Job{
			Count:      genCount,
			Prompt:     genPrompt,
			Tags:       tags,
			Date:       genDate,
			SourceURL:  genSourceURL,
			FromTopics: genFromTopics,
		})
		printReport(report)

		if report.Err != nil {
			return fmt.Errorf("batch stopped: %w", report.Err)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().IntVarP(&genCount, "count", "n", 1, "Number of articles to generate")
	generateCmd.Flags().StringVarP(&genPrompt, "prompt", "p", "", "Topic prompt for the article")
	generateCmd.Flags().StringSliceVarP(&genTags, "tag", "t", nil, "Article tag (repeatable; defaults to article.default_tags)")
	generateCmd.Flags().StringVar(&genDate, "date", "", "Article date (YYYY-MM-DD, default today)")
	generateCmd.Flags().StringVar(&genSourceURL, "source-url", "", "Reference page to ground the article in")
	generateCmd.Flags().BoolVar(&genFromTopics, "from-topics", false, "Pick each round's topic from collected headlines")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "Publish into a local directory under the data dir")
}

func printReport(report *pipeline.Report) {
	for _, rr := range report.Rounds {
		fmt.Printf("\nRound %d: %s\n", rr.Index+1, rr.Prompt)
		for _, step := range rr.Steps {
			if step.Err != nil {
				fmt.Printf("  %s: error: %v\n", step.Name, step.Err)
			} else {
				fmt.Printf("  %s: %s\n", step.Name, step.Summary)
			}
		}
		if rr.Err == nil && rr.Article != nil {
			fmt.Printf("  Published %s in %s\n", rr.Article.Name, rr.Duration.Round(time.Millisecond))
		}
	}
	fmt.Printf("\nBatch %s: %d of %d round(s) published.\n", report.BatchID, report.Published(), len(report.Rounds))
}

// --- topics command ---

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List unused headlines from the configured topic sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		collector := topics.NewCollector(cfg.Topics, logger)
		headlines := collector.Collect(cmd.Context())
		if len(headlines) == 0 {
			fmt.Println("No headlines found. Add feeds under topics.feeds or enable topics.newsapi.")
			return nil
		}

		unused := 0
		for _, h := range headlines {
			used, err := db.IsTopicUsed(h.URL)
			if err != nil {
				return err
			}
			if used {
				continue
			}
			unused++
			fmt.Printf("  [%s] %s\n", h.Source, h.Title)
			fmt.Printf("        %s\n", h.URL)
		}
		fmt.Printf("\n%d unused of %d headline(s).\n", unused, len(headlines))
		return nil
	},
}

// --- history command ---

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent rounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rounds, err := db.ListRounds(historyLimit)
		if err != nil {
			return err
		}
		if len(rounds) == 0 {
			fmt.Println("No rounds yet. Generate one with: autoblog generate --prompt \"...\"")
			return nil
		}

		for _, r := range rounds {
			title := r.Title
			if title == "" {
				title = r.Prompt
			}
			icon := "*"
			if !r.Published() {
				icon = "!"
			}
			fmt.Printf("  [%d] %s %s  %s\n", r.ID, icon, database.FormatDateDisplay(r.Date), title)
			if r.Error != "" {
				msg := r.Error
				if len(msg) > 80 {
					msg = msg[:80] + "..."
				}
				fmt.Printf("        %s\n", msg)
			} else if r.ArticlePath != "" {
				fmt.Printf("        %s\n", r.ArticlePath)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of rounds to show (0 for all)")
}

// --- serve command ---

var (
	servePort   int
	serveDryRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server and the optional schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		runner, err := pipeline.FromConfig(cfg, db, serveDryRun, logger)
		if err != nil {
			return err
		}

		opts := server.Options{
			Generator:   runner,
			DefaultTags: cfg.Article.DefaultTags,
			StaticDir:   cfg.Server.StaticDir,
			Logger:      logger,
		}
		if cfg.Schedule.Enabled {
			sched := schedule.New(runner, cfg.Schedule, logger)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()
			opts.Schedule = sched
		}

		srv, err := server.New(db, opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://%s\n", cfg.ListenAddr())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, cfg.ListenAddr(), srv.Handler(), logger)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Publish into a local directory under the data dir")
}

func policyName(p string) string {
	if p == "" {
		return frontmatter.DefaultPolicyVersion
	}
	return p
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "autoblog.db"), logger)
}
