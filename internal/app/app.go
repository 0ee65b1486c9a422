package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/emerald/internal/auth"
	"github.com/hitoshi/emerald/internal/config"
	"github.com/hitoshi/emerald/internal/database"
	"github.com/hitoshi/emerald/internal/geocode"
	"github.com/hitoshi/emerald/internal/handler"
	"github.com/hitoshi/emerald/internal/imaging"
	"github.com/hitoshi/emerald/internal/invite"
	"github.com/hitoshi/emerald/internal/logger"
	"github.com/hitoshi/emerald/internal/member"
	"github.com/hitoshi/emerald/internal/metrics"
	"github.com/hitoshi/emerald/internal/middleware"
	"github.com/hitoshi/emerald/internal/profile"
	"github.com/hitoshi/emerald/internal/repository"
	"github.com/hitoshi/emerald/internal/security"
	"github.com/hitoshi/emerald/internal/worker/cleanup"
)

// multipartOverhead はアバターアップロード時のフォーム境界などの余裕分。
const multipartOverhead = 1 << 20

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// 設定を必要としない軽量サブコマンドはフル初期化をスキップする
	switch cmd {
	case CommandHelp:
		return writeUsage(w)
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandImages:
		logger.SetupDefault(w)
		return runImages(w, commandArgs(args))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	logCloser := logger.Init(w, logger.Options{
		Level:         cfg.LogLevel,
		File:          cfg.LogFile,
		RetentionDays: cfg.LogRetentionDays,
	})
	defer logCloser.Close()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandInvite:
		return runInvite(w, cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newGeocoder はGEOCODER_URLが設定されている場合のみジオコーダーを生成する。
func newGeocoder(cfg *config.Config, collector *metrics.Collector) profile.Geocoder {
	if cfg.GeocoderURL == "" {
		return nil
	}
	client := geocode.NewClient(geocode.Config{
		Endpoint:  cfg.GeocoderURL,
		UserAgent: cfg.GeocoderUserAgent,
		Timeout:   cfg.GeocoderTimeout,
	}, nil, slog.Default())
	client.OnLatency(collector.RecordGeocodeLatency)
	return client
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	locationRepo := repository.NewPostgresLocationRepo(db)
	inviteRepo := repository.NewPostgresInviteKeyRepo(db)

	// 4. ドメインサービスの初期化
	geocoder := newGeocoder(cfg, collector)
	authService := auth.NewService(userRepo, sessionRepo, inviteRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	inviteService := invite.NewService(inviteRepo)
	profileService := profile.NewService(userRepo, sessionRepo, locationRepo, geocoder, cfg.ThumbnailSize)
	memberService := member.NewService(userRepo, locationRepo, collector)

	// 5. 描画
	renderer, err := handler.NewRenderer(handler.SiteInfo{
		Name:        cfg.SiteName,
		NameLong:    cfg.SiteNameLong,
		Description: cfg.SiteDescription,
		Debug:       cfg.Debug,
	}, security.NewBioSanitizer())
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	static, err := handler.NewStaticHandler(cfg.BaseURL, cfg.SiteName, db)
	if err != nil {
		return fmt.Errorf("failed to render static files: %w", err)
	}

	// 6. レート制限（設定値はreq/min）
	rateLimiterCfg := middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin)
	rateLimiterCfg.OnLoginLimited = func() { collector.RecordLogin(metrics.LoginRateLimited) }
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	authCfg := handler.AuthHandlerConfig{
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}
	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		StatusObserver: collector,
		SessionFinder:  sessionRepo,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		MaxRequestBytes:   cfg.AvatarMaxSize + multipartOverhead,

		Renderer: renderer,
		Static:   static,
		Metrics:  metrics.Handler(registry),

		AuthService:   authService,
		Invites:       inviteService,
		LoginRecorder: collector,
		AuthConfig:    authCfg,

		ProfileService: profileService,
		ProfileConfig: handler.ProfileHandlerConfig{
			DefaultLongitude: cfg.DefaultLongitude,
			DefaultLatitude:  cfg.DefaultLatitude,
			Geocoding:        geocoder != nil,
			Cookie:           authCfg,
		},

		MemberService: memberService,
		Users:         userRepo,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
			slog.Bool("geocoding", geocoder != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのセッションと招待キーを起動時とCLEANUP_INTERVAL間隔で削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresInviteKeyRepo(db),
		slog.Default(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))

	// コンテキストがキャンセルされるまでブロックする
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runInvite は招待キーを発行し、アカウント作成URLをwに出力する。
// 引数のメールアドレスは省略できる。
func runInvite(w io.Writer, cfg *config.Config, args []string) error {
	var email string
	if len(args) > 0 {
		email = args[0]
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key, err := invite.NewService(repository.NewPostgresInviteKeyRepo(db)).Issue(ctx, email, cfg.InviteTTL)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, invite.RegistrationURL(cfg.BaseURL, key))
	return err
}

// runImages はベース画像と小サイズ用画像からサイトアイコン一式を生成する。
func runImages(w io.Writer, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: images <base> <small> <outdir>")
	}

	written, err := imaging.GenerateIcons(args[0], args[1], args[2])
	if err != nil {
		return fmt.Errorf("failed to generate icons: %w", err)
	}
	for _, path := range written {
		if _, err := fmt.Fprintln(w, path); err != nil {
			return err
		}
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
