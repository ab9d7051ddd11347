package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rpsserver/models"

	"github.com/BurntSushi/toml"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 設定ファイルで省略された場合のデフォルト値
const (
	DefaultForceCloseInterval = 180 // 秒
	DefaultEventChannel       = "competition-events"
	DefaultListenAddr         = ":8080"
)

// LoadConfig loads the configuration from a .json or .toml file.
func LoadConfig(filename string) (models.Config, error) {
	var config models.Config
	configFile, err := os.Open(filename)
	if err != nil {
		return config, err
	}
	defer configFile.Close()

	switch filepath.Ext(filename) {
	case ".toml":
		_, err = toml.NewDecoder(configFile).Decode(&config)
	default:
		err = json.NewDecoder(configFile).Decode(&config)
	}
	if err != nil {
		return config, fmt.Errorf("設定ファイルの解析に失敗しました %s: %v", filename, err)
	}
	applyDefaults(&config)
	return config, validateConfig(config)
}

func applyDefaults(config *models.Config) {
	if config.ForceCloseInterval == 0 {
		config.ForceCloseInterval = DefaultForceCloseInterval
	}
	if config.EventChannel == "" {
		config.EventChannel = DefaultEventChannel
	}
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}
	if config.DBSSLMode == "" {
		config.DBSSLMode = "disable"
	}
}

func validateConfig(config models.Config) error {
	if config.ForceCloseInterval < 0 {
		return fmt.Errorf("force_close_interval must be positive, got %d", config.ForceCloseInterval)
	}
	if config.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if config.KeeperSchedule != "" && config.KeeperAddress == "" {
		return fmt.Errorf("keeper_address is required when keeper_schedule is set")
	}
	return nil
}

func InitPostgreSQL(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		time.Sleep(retryInterval)
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %v", err)
}

// AutoMigrate は competitions, accounts, sequences テーブルを作成・更新する
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Competition{}, &models.Account{}, &models.Sequence{})
}

// InitRedis は設定と環境変数からRedisクライアントを作成します。環境変数が優先されます。
func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = config.RedisAddr
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379" // デフォルト値
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")
	if redisPassword == "" {
		redisPassword = config.RedisPassword
	}
	db := config.RedisDB
	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		n, err := strconv.Atoi(redisDB)
		if err != nil {
			logger.Info("Invalid REDIS_DB value, using configured DB", zap.Int("db", db))
		} else {
			db = n
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", redisAddr))
	return rdb, nil
}
