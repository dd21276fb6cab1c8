package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/foundly/foundly/internal/api"
	"github.com/foundly/foundly/internal/automatch"
	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/detect"
	"github.com/foundly/foundly/internal/embeddings"
	"github.com/foundly/foundly/internal/normalize"
	"github.com/foundly/foundly/internal/notify"
	"github.com/foundly/foundly/internal/store"
)

func main() {
	config.LoadEnv()
	log := config.NewLogger()

	rootCmd := &cobra.Command{
		Use:   "foundly",
		Short: "Foundly lost-and-found matching service",
		Long:  `Item intake, multi-signal similarity scoring and automatic lost/found matching`,
	}

	rootCmd.AddCommand(createServeCmd(log))
	rootCmd.AddCommand(createMatchCmd(log))
	rootCmd.AddCommand(createConfigCmd(log))
	rootCmd.AddCommand(createPingCmd(log))

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// deps bundles everything a running command needs.
type deps struct {
	conn     *store.Connection
	items    store.ItemStore
	matches  store.MatchStore
	provider config.Provider
	orc      *automatch.Orchestrator
}

func buildDeps(log *logrus.Logger) (*deps, error) {
	conn, err := store.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	provider, err := buildProvider(log)
	if err != nil {
		conn.Close()
		return nil, err
	}

	items := store.NewPostgresItemStore(conn.DB)
	matches := store.NewPostgresMatchStore(conn.DB)

	var embedder embeddings.Embedder
	if url := config.GetEnv("FOUNDLY_EMBED_URL", ""); url != "" {
		embedder = embeddings.NewClient(embeddings.ClientConfig{
			BaseURL: url,
			APIKey:  config.GetEnv("FOUNDLY_EMBED_API_KEY", ""),
			Timeout: provider.Snapshot().EmbedTimeout,
		}, log)
	} else if config.GetEnvBool("FOUNDLY_EMBED_LOCAL", false) {
		embedder = embeddings.NewLocalEmbedder(256)
	}

	var parser normalize.LocationParser
	if config.GetEnvBool("FOUNDLY_POSTAL_PARSER", false) {
		parser = normalize.NewPostalParser()
	}

	var locker automatch.PairLocker
	if addr := config.GetEnv("FOUNDLY_REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.GetEnv("FOUNDLY_REDIS_PASSWORD", ""),
			DB:       config.GetEnvInt("FOUNDLY_REDIS_DB", 0),
		})
		locker = automatch.NewRedisLocker(rdb)
	}

	orc := &automatch.Orchestrator{
		Items:            items,
		Matches:          matches,
		Provider:         provider,
		Embedder:         embedder,
		Parser:           parser,
		Locker:           locker,
		Notifier:         notify.NewLogNotifier(log),
		Log:              log,
		ScoreConcurrency: config.GetEnvInt("FOUNDLY_SCORE_CONCURRENCY", 8),
	}

	return &deps{conn: conn, items: items, matches: matches, provider: provider, orc: orc}, nil
}

func buildProvider(log *logrus.Logger) (config.Provider, error) {
	path := config.GetEnv("FOUNDLY_MATCH_CONFIG", "")
	if path == "" {
		return config.NewStaticProvider(config.Default())
	}
	interval := time.Duration(config.GetEnvInt("FOUNDLY_MATCH_CONFIG_REFRESH_SECONDS", 60)) * time.Second
	return config.NewFileProvider(path, interval, log)
}

func createServeCmd(log *logrus.Logger) *cobra.Command {
	var host string
	var port int
	var workers int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background auto-matching",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(log)
			if err != nil {
				return err
			}
			defer d.conn.Close()

			queue := automatch.NewQueue(d.orc, workers, 256, log)
			server := api.NewServer(api.Config{Host: host, Port: port}, d.items, d.matches, d.orc, queue, log)
			if url := config.GetEnv("FOUNDLY_DETECT_URL", ""); url != "" {
				server.SetDetector(detect.NewClient(url, 15*time.Second, log))
			}
			return server.Start()
		},
	}

	cmd.Flags().StringVar(&host, "host", config.GetEnv("FOUNDLY_HOST", "0.0.0.0"), "Listen host")
	cmd.Flags().IntVar(&port, "port", config.GetEnvInt("FOUNDLY_PORT", 8080), "Listen port")
	cmd.Flags().IntVar(&workers, "workers", config.GetEnvInt("FOUNDLY_MATCH_WORKERS", 2), "Auto-match worker count")
	return cmd
}

func createMatchCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "match <item-id>",
		Short: "Run the matching pipeline for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(log)
			if err != nil {
				return err
			}
			defer d.conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			res, err := d.orc.Run(ctx, args[0])
			if err != nil {
				return err
			}
			d.orc.WaitNotifications()

			fmt.Printf("Outcome: %s\n", res.Outcome)
			if res.Record != nil {
				fmt.Printf("Match %s: lost=%s found=%s score=%.1f status=%s\n",
					res.Record.ID, res.Record.LostItemID, res.Record.FoundItemID,
					res.Record.Score, res.Record.Status)
			}
			return nil
		},
	}
}

func createConfigCmd(log *logrus.Logger) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Match configuration utilities",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the match configuration and print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := buildProvider(log)
			if err != nil {
				return err
			}
			cfg := provider.Snapshot()

			fmt.Println("Match configuration OK")
			fmt.Printf("  Weights (sum %.0f): tags=%.0f description=%.0f color=%.0f category=%.0f location=%.0f time=%.0f semantic=%.0f\n",
				cfg.Weights.Sum(), cfg.Weights.Tags, cfg.Weights.Description, cfg.Weights.Color,
				cfg.Weights.Category, cfg.Weights.Location, cfg.Weights.Time, cfg.Weights.Semantic)
			fmt.Printf("  Threshold: %.0f\n", cfg.Threshold)
			fmt.Printf("  Prefilter: minCommonTags=%d maxDistanceKm=%.0f maxTimeDiffHours=%.0f\n",
				cfg.Prefilter.MinCommonTags, cfg.Prefilter.MaxDistanceKm, cfg.Prefilter.MaxTimeDiffHours)
			return nil
		},
	})
	return configCmd
}

func createPingCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := store.NewConnection()
			if err != nil {
				return err
			}
			defer conn.Close()

			fmt.Println("Database connection successful!")
			var items, matches int
			if err := conn.DB.QueryRow("SELECT COUNT(*) FROM items").Scan(&items); err == nil {
				fmt.Printf("Items stored: %d\n", items)
			}
			if err := conn.DB.QueryRow("SELECT COUNT(*) FROM match_records").Scan(&matches); err == nil {
				fmt.Printf("Match records: %d\n", matches)
			}
			return nil
		},
	}
}
