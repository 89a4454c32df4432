package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vitalsup/internal/config"
	"vitalsup/internal/edge"
	"vitalsup/internal/model"
	"vitalsup/internal/openaccess"
	"vitalsup/internal/proxy"
	"vitalsup/internal/store"
	"vitalsup/internal/triage"
	"vitalsup/internal/web"
	"vitalsup/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	cfg        config.Config
	configPath string
	redisAddr  string
	badgerPath string
)

var rootCmd = &cobra.Command{
	Use:   "vitalsup",
	Short: "VitalsUp - article triage and open-access resolution",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("redis") {
			cfg.Store.RedisAddr = redisAddr
		}
		if cmd.Flags().Changed("badger") {
			cfg.Store.BadgerPath = badgerPath
		}
		logger, err = newLogger(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the web app and the snapshot worker",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Setup Signal Handling (Ctrl+C)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// Setup Manual 'q' input handling
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if scanner.Text() == "q" {
					fmt.Println(" 'q' pressed. Stopping...")
					cancel()
					return
				}
			}
		}()

		// Handle shutdown signals
		go func() {
			<-sigChan
			logger.Info("Shutting down...")
			cancel()
		}()

		st, queue, closeStore, err := openStore(ctx, cfg.Store)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer closeStore()

		fin := triage.NewFinalizer(st, queue, logger.Named("triage"))
		fwd := proxy.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, 30*time.Second)
		if !fwd.Configured() {
			logger.Warn("Supabase URL or anon key missing; open-access lookups will fail")
		}

		srv := web.NewServer(st, fin, fwd, logger.Named("web"), web.Options{
			SessionMaxAge: cfg.Server.SessionMaxAge,
			SecureCookies: cfg.Server.SecureCookies,
		})
		go func() {
			if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Web server failed", zap.Error(err))
				cancel()
			}
		}()

		if cfg.Server.SnapshotWorker {
			w := worker.NewWorker(st, queue, logger.Named("worker"))
			go w.Start(ctx)
		}

		logger.Info("Server running.", zap.String("store", cfg.Store.Driver))
		fmt.Println("Press 'q' + Enter or Ctrl+C to stop.")

		// Block until shutdown
		<-ctx.Done()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("Web server shutdown", zap.Error(err))
		}
		logger.Info("Goodbye!")
	},
}

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Serve the open-access resolver function",
	Run: func(cmd *cobra.Command, args []string) {
		resolver, err := newResolver(cfg.Unpaywall)
		if err != nil {
			logger.Fatal("Failed to init resolver", zap.Error(err))
		}

		srv := edge.NewServer(resolver, logger.Named("edge"), edge.Options{
			AllowedOrigins: cfg.Functions.AllowedOrigins,
			APIKey:         cfg.Supabase.AnonKey,
		})

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(cfg.Functions.Addr) }()

		select {
		case <-sigChan:
			logger.Info("Shutting down...")
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("Resolver function failed", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Stop(ctx)
	},
}

var discoverTitle string

var discoverCmd = &cobra.Command{
	Use:   "discover [url]",
	Short: "Record an article as having passed the relevance check",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		ctx := context.Background()

		st, _, closeStore, err := openStore(ctx, clientMode(cfg.Store))
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer closeStore()

		title := discoverTitle
		if title == "" {
			title = url
		}
		article := model.NewArticle(title, url)
		if err := st.Save(ctx, &article); err != nil {
			logger.Fatal("Failed to save article", zap.Error(err))
		}

		logger.Info("Article ready for triage",
			zap.String("id", article.ID),
			zap.String("url", url))
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [url-or-doi]",
	Short: "Look up the open-access status of an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := newResolver(cfg.Unpaywall)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Unpaywall.Timeout+5*time.Second)
		defer cancel()
		res, err := resolver.Resolve(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func newResolver(uc config.UnpaywallConfig) (*openaccess.Resolver, error) {
	client, err := openaccess.NewClient(openaccess.ClientOptions{
		BaseURL:           uc.BaseURL,
		Email:             uc.Email,
		Timeout:           uc.Timeout,
		RequestsPerSecond: uc.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return openaccess.NewResolver(client, logger.Named("openaccess"),
		openaccess.WithCache(uc.CacheSize, uc.CacheTTL),
		openaccess.WithLookupTimeout(uc.Timeout)), nil
}

// clientMode keeps CLI tools off the Badger directory lock held by the server.
func clientMode(sc config.StoreConfig) config.StoreConfig {
	sc.BadgerPath = ""
	return sc
}

// openStore opens the configured article store and the snapshot queue,
// which always lives in Redis.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, *store.RedisQueue, func(), error) {
	rdb, err := store.OpenRedis(ctx, sc.RedisAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	queue := store.NewRedisQueue(rdb)

	if sc.Driver == config.DriverPostgres {
		pg, err := store.OpenPostgres(ctx, sc.PostgresDSN)
		if err != nil {
			rdb.Close()
			return nil, nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			rdb.Close()
			return nil, nil, nil, err
		}
		return pg, queue, func() {
			pg.Close()
			rdb.Close()
		}, nil
	}

	hs, err := store.NewHybridStore(rdb, sc.BadgerPath)
	if err != nil {
		rdb.Close()
		return nil, nil, nil, err
	}
	return hs, queue, hs.Close, nil
}

func newLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default $VITALSUP_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB data directory")

	discoverCmd.Flags().StringVar(&discoverTitle, "title", "", "Article title (defaults to the URL)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(functionsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(resolveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
