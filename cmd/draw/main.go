package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danbruder/draw/assets"
	"github.com/danbruder/draw/config"
	"github.com/danbruder/draw/devwatch"
	"github.com/danbruder/draw/game"
	"github.com/danbruder/draw/logger"
	"github.com/danbruder/draw/storage"
	"github.com/danbruder/draw/words"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("draw exited")
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "draw",
		Usage: "multiplayer drawing and guessing server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: config.DefaultHost, Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: config.DefaultPort, Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "allowed-origins", Usage: "comma separated", Sources: cli.EnvVars("ALLOWED_ORIGINS")},
			&cli.StringFlag{Name: "log-level", Value: "info", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.BoolFlag{Name: "log-pretty", Sources: cli.EnvVars("LOG_PRETTY")},
			&cli.StringFlag{Name: "postgres-url", Sources: cli.EnvVars("POSTGRES_URL")},
			&cli.IntFlag{Name: "max-participants", Value: config.DefaultMaxParticipants, Sources: cli.EnvVars("MAX_PARTICIPANTS")},
			&cli.IntFlag{Name: "outbound-queue", Value: config.DefaultOutboundQueue, Sources: cli.EnvVars("OUTBOUND_QUEUE")},
			&cli.DurationFlag{Name: "tick-interval", Value: config.DefaultTickInterval, Sources: cli.EnvVars("TICK_INTERVAL")},
			&cli.DurationFlag{Name: "ping-interval", Value: config.DefaultPingInterval, Sources: cli.EnvVars("PING_INTERVAL")},
			&cli.StringFlag{Name: "assets-src", Value: config.DefaultAssetsSrc, Sources: cli.EnvVars("ASSETS_SRC")},
			&cli.StringFlag{Name: "build-cmd", Value: config.DefaultBuildCmd, Sources: cli.EnvVars("BUILD_CMD")},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the game server",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "dev", Usage: "serve assets from disk and rebuild them on change"}},
				Action: serveAction,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "seed", Usage: "insert the built-in word list"}},
				Action: migrateAction,
			},
		},
	}
}

func configFromCommand(cmd *cli.Command) config.Config {
	return config.Config{
		Host:            cmd.String("host"),
		Port:            int(cmd.Int("port")),
		AllowedOrigins:  config.ParseOrigins(cmd.String("allowed-origins")),
		LogLevel:        cmd.String("log-level"),
		LogPretty:       cmd.Bool("log-pretty"),
		PostgresURL:     cmd.String("postgres-url"),
		MaxParticipants: int(cmd.Int("max-participants")),
		OutboundQueue:   int(cmd.Int("outbound-queue")),
		TickInterval:    cmd.Duration("tick-interval"),
		PingInterval:    cmd.Duration("ping-interval"),
		Dev:             cmd.Bool("dev"),
		AssetsSrc:       cmd.String("assets-src"),
		BuildCmd:        cmd.String("build-cmd"),
	}
}

func setup(cmd *cli.Command) (config.Config, zerolog.Logger, error) {
	cfg := configFromCommand(cmd)
	log, err := logger.Setup(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		return cfg, log, fmt.Errorf("%w: log level: %w", config.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, log, err
	}
	return cfg, log, nil
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.PostgresURL == "" {
		return fmt.Errorf("%w: migrate needs POSTGRES_URL", config.ErrInvalidConfig)
	}
	if err := storage.Migrate(ctx, cfg.PostgresURL, log); err != nil {
		return err
	}
	if !cmd.Bool("seed") {
		return nil
	}

	repo, err := storage.NewPostgresRepo(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer repo.Close()
	added, err := repo.AddWords(ctx, words.Default().Words())
	if err != nil {
		return err
	}
	log.Info().Int64("added", added).Msg("word list seeded")
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	var (
		archiver game.TurnArchiver
		history  game.TurnHistory
		bank     = words.Default()
	)
	if cfg.PostgresURL != "" {
		repo, err := openStorage(ctx, cfg.PostgresURL, log)
		if err != nil {
			return err
		}
		defer repo.Close()
		archiver, history = repo, repo
		bank = loadBank(ctx, repo, bank, log)
	}
	log.Info().Int("words", bank.Len()).Msg("word bank ready")

	lobbyCtx, stopLobby := context.WithCancel(context.Background())
	defer stopLobby()
	lobby := game.NewLobby(game.LobbyConfig{
		Room:         game.RoomConfig{MaxParticipants: cfg.MaxParticipants, QueueSize: cfg.OutboundQueue},
		TickInterval: cfg.TickInterval,
		PingInterval: cfg.PingInterval,
	}, game.NewIdGen(), game.NewTickerGen(), bank, archiver, log)
	lobbyStarted := make(chan struct{})
	go lobby.Run(lobbyCtx, lobbyStarted)
	<-lobbyStarted

	files, err := publicFiles(cfg)
	if err != nil {
		return err
	}
	r := CreateServer(cfg.AllowedOrigins, log)
	gameHandler := game.NewGameHandler(lobby, history, game.NewIdGen(), cfg.AllowedOrigins, log)
	if err := routes(r, gameHandler, files); err != nil {
		return err
	}

	if cfg.Dev {
		runner := devwatch.ShellRunner{Command: cfg.BuildCmd, Dir: filepath.Dir(cfg.AssetsSrc)}
		watcher, err := devwatch.New(cfg.AssetsSrc, devwatch.DefaultDebounce, runner, log)
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.AssetsSrc, err)
		}
		go watcher.Run(ctx)
	}

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Bool("dev", cfg.Dev).Msg("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stopLobby()
		lobby.Wait()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	stopLobby()
	lobby.Wait()
	return nil
}

func openStorage(ctx context.Context, url string, log zerolog.Logger) (*storage.PostgresRepo, error) {
	if err := storage.Migrate(ctx, url, log); err != nil {
		return nil, err
	}
	return storage.NewPostgresRepo(ctx, url)
}

// loadBank prefers the stored word list and keeps fallback when it is empty
// or unreadable.
func loadBank(ctx context.Context, repo *storage.PostgresRepo, fallback *words.Bank, log zerolog.Logger) *words.Bank {
	stored, err := repo.LoadWords(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load words, using built-in list")
		return fallback
	}
	bank, err := words.NewBank(stored)
	if err != nil {
		log.Warn().Err(err).Msg("no stored words, using built-in list")
		return fallback
	}
	return bank
}

func publicFiles(cfg config.Config) (fs.FS, error) {
	if !cfg.Dev {
		return assets.FS("")
	}
	return assets.FS(filepath.Join(filepath.Dir(cfg.AssetsSrc), "public"))
}
