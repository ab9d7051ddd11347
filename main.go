package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rpsserver/auth"      //JWTの署名鍵
	"rpsserver/broadcast" //イベントのRedis中継とWebsocket配信
	"rpsserver/database"  //設定、PostgreSQLとRedisの初期化
	"rpsserver/handlers"  //HTTPリクエストの処理
	"rpsserver/registry"  //競技の状態遷移と賭け金の保管
	"rpsserver/utils"     //ロガーの初期化とCronジョブ(期限切れ競技の強制終了)

	"github.com/go-redis/redis/v8"
	gometrics "github.com/rcrowley/go-metrics"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json or config.toml")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	config, err := database.LoadConfig(*configPath)
	if err != nil {
		panic(err) // ロガーより先に失敗した場合はプログラム停止
	}

	logger, err := utils.InitLogger(config.LogFile) // ロガーの初期化
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // ロガーのクリーンアップ

	auth.SetKey(config.JWTSecret)

	// db_host が無ければメモリ上のストアで動かす(開発用)
	var store registry.Store
	if config.DBHost == "" {
		logger.Warn("db_host is not set, competitions are kept in memory")
		store = registry.NewMemoryStore()
	} else {
		db, err := database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
		store = database.NewCompetitionStore(db)
	}
	if *migrateOnly {
		logger.Info("Migration finished")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redisが設定されていれば複数インスタンス間でイベントを中継する
	var rdb *redis.Client
	if config.RedisAddr != "" || os.Getenv("REDIS_ADDR") != "" {
		rdb, err = database.InitRedis(config, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer rdb.Close()
	}
	hub := broadcast.NewHub(rdb, config.EventChannel, logger)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Event relay stopped", zap.Error(err))
		}
	}()

	reg := registry.New(store, time.Duration(config.ForceCloseInterval)*time.Second,
		registry.WithPublisher(hub),
		registry.WithLogger(logger),
		registry.WithMetrics(gometrics.DefaultRegistry),
	)

	// クーロンスケジューラのセットアップと呼び出し
	if config.KeeperSchedule != "" {
		keeper, err := utils.CronKeeper(reg, config.KeeperSchedule, config.KeeperAddress, logger)
		if err != nil {
			logger.Fatal("Invalid keeper_schedule", zap.Error(err))
		}
		defer keeper.Stop()
	}

	router := handlers.SetupRouter(reg, hub, config, logger)
	logger.Info("Server starting", zap.String("addr", config.ListenAddr),
		zap.Duration("force_close_interval", reg.ForceCloseInterval()))
	go func() {
		if err := router.Run(config.ListenAddr); err != nil {
			logger.Fatal("Failed to run HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
}
