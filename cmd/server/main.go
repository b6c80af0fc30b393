package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/taoyao-code/wearable-server/internal/app"
	cfgpkg "github.com/taoyao-code/wearable-server/internal/config"
	"github.com/taoyao-code/wearable-server/internal/health"
	"github.com/taoyao-code/wearable-server/internal/httpserver"
	"github.com/taoyao-code/wearable-server/internal/logging"
	"github.com/taoyao-code/wearable-server/internal/manifest"
	"github.com/taoyao-code/wearable-server/internal/metrics"
	"github.com/taoyao-code/wearable-server/internal/outbound"
	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
	"github.com/taoyao-code/wearable-server/internal/protocol/datalog"
	"github.com/taoyao-code/wearable-server/internal/session"
	"github.com/taoyao-code/wearable-server/internal/signals"
	"github.com/taoyao-code/wearable-server/internal/storage"
	"github.com/taoyao-code/wearable-server/internal/storage/gormrepo"
	"github.com/taoyao-code/wearable-server/internal/storage/memrepo"
	"github.com/taoyao-code/wearable-server/internal/storage/models"
	redisstorage "github.com/taoyao-code/wearable-server/internal/storage/redis"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)
	metricsHandler := metrics.Handler(reg)

	ready := health.New()
	agg := health.NewAggregator()

	// 4) 存储层：按配置选 PostgreSQL 或内存实现
	var repo storage.DeviceRepo
	if cfg.Database.Enabled {
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("database pool", zap.Error(err))
		}
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		if err := db.AutoMigrate(&models.Device{}, &models.WatchApp{}, &models.SleepRecord{}); err != nil {
			log.Fatal("migrate schema", zap.Error(err))
		}

		repo = gormrepo.New(db)
		agg.AddChecker(health.NewDatabaseChecker(sqlDB))
		ready.SetDBReady(true)
		log.Info("database storage ready")
	} else {
		repo = memrepo.New()
		ready.SetDBReady(true)
		log.Info("in-memory storage ready, data will not survive restart")
	}

	// 5) Redis（webhook 信号队列依赖）
	var redisClient *redisstorage.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisstorage.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal("connect redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		agg.AddChecker(health.NewRedisChecker(redisClient))
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	// 6) 宿主信号发布后端
	var pub signals.Publisher
	switch cfg.Signals.Backend {
	case "webhook":
		if redisClient == nil {
			log.Fatal("signals backend webhook requires redis.enabled=true")
		}
		pusher := signals.NewPusher(&http.Client{Timeout: 10 * time.Second}, cfg.Signals.APIKey, cfg.Signals.Secret)
		q := signals.NewQueue(redisClient.Client, pusher, cfg.Signals.WebhookURL, cfg.Signals.PushPerSec, log)
		q.StartWorker(ctx, cfg.Signals.Workers)
		pub = q
		log.Info("signal backend: webhook", zap.Int("workers", cfg.Signals.Workers))
	case "nats":
		conn, err := nats.Connect(cfg.Signals.NATSURL, nats.Name(cfg.App.Name))
		if err != nil {
			log.Fatal("connect nats", zap.Error(err))
		}
		defer conn.Close()
		pub = signals.NewNATSPublisher(conn, cfg.Signals.SubjectPrefix, log)
		log.Info("signal backend: nats", zap.String("url", cfg.Signals.NATSURL))
	default:
		pub = signals.NewLogPublisher(log)
		log.Info("signal backend: log only")
	}
	ready.SetSignalsReady(true)

	// 7) 协议层：键清单、编解码注册表、数据日志跟踪器
	resolver := manifest.NewDirResolver(cfg.Manifest.Dir)
	weather := app.NewWeatherStore(cfg.Weather.MaxAge)

	registry := appmsg.NewRegistry()
	registry.Register(appmsg.NewObsidianCodec(resolver, weather, log))
	registry.Register(appmsg.NewHealthifyCodec(resolver, weather, log))
	registry.Register(appmsg.NewSquareCodec(resolver, weather, log))

	tracker := datalog.NewTracker(log)
	tracker.RegisterHandler(datalog.NewSleepHandler())

	// 8) 会话与下行队列
	sessions := session.New(cfg.Device.SessionTimeout)

	outQueue := outbound.NewQueue(cfg.Outbound.QueueSize)
	worker := outbound.NewWorker(outQueue, app.NewLogSender(log), cfg.Outbound.SendPerSec, cfg.Outbound.MaxRetries, log)
	worker.SetOnDrop(func(*outbound.Message) { appMetrics.OutboundDropped.Inc() })
	go worker.Run(ctx)
	agg.AddChecker(health.NewQueueChecker(outQueue, cfg.Outbound.QueueSize))

	// 9) 事件分发与入站路由
	dispatcher := app.NewDispatcher(repo, pub, nil, nil, app.DispatcherConfig{
		BatteryThresholdPercent: cfg.Device.BatteryThresholdPercent,
		ReplySuffix:             cfg.Device.ReplySuffix,
	}, log)
	router := app.NewRouter(sessions, registry, tracker, dispatcher, outQueue, pub, appMetrics, log)
	commander := app.NewCommander(registry, resolver, outQueue, log)

	// 10) 队列与在线数指标采样
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				appMetrics.OutboundQueue.Set(float64(outQueue.Len()))
				appMetrics.OnlineGauge.Set(float64(sessions.OnlineCount(time.Now())))
				appMetrics.SessionsOpen.Set(float64(tracker.SessionCount()))
			}
		}
	}()

	// 11) HTTP 服务
	api := &httpserver.API{
		Repo:     repo,
		Sessions: sessions,
		Commands: commander,
		Weather:  weather,
		Frames:   router,
		Log:      log,
	}
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready, agg, api)

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
