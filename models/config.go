package models

// Config 構造体はサーバーの設定情報を保持します。
type Config struct {
	DBHost     string `json:"db_host" toml:"db_host"`
	DBUser     string `json:"db_user" toml:"db_user"`
	DBPassword string `json:"db_password" toml:"db_password"`
	DBName     string `json:"db_name" toml:"db_name"`
	DBSSLMode  string `json:"db_sslmode" toml:"db_sslmode"`

	RedisAddr     string `json:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redis_db" toml:"redis_db"`
	EventChannel  string `json:"event_channel" toml:"event_channel"`

	ListenAddr   string   `json:"listen_addr" toml:"listen_addr"`
	AllowOrigins []string `json:"allow_origins" toml:"allow_origins"`
	JWTSecret    string   `json:"jwt_secret" toml:"jwt_secret"`
	LogFile      string   `json:"log_file" toml:"log_file"`

	// 秒単位。起動後は変更不可
	ForceCloseInterval int64  `json:"force_close_interval" toml:"force_close_interval"`
	InitialGrant       uint64 `json:"initial_grant" toml:"initial_grant"`
	KeeperSchedule     string `json:"keeper_schedule" toml:"keeper_schedule"`
	KeeperAddress      string `json:"keeper_address" toml:"keeper_address"`
}
