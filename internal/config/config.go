package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Configはアプリ全体の設定
type Config struct {
	Port string `envconfig:"PORT" default:"8080"` // サーバーポート

	StorageDriver string        `envconfig:"STORAGE_DRIVER" default:"file"` // file / postgres / mysql
	FileStorePath string        `envconfig:"FILE_STORE_PATH" default:"/tmp/mall_store.json"`
	LockTimeout   time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"` // 行ロック待ち・ストアのロック待ち

	DatabaseURL      string `envconfig:"DATABASE_URL"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"mall"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MySQLDSN         string `envconfig:"MYSQL_DSN"`

	JWTSecret  string `envconfig:"JWT_SECRET"`  // JWT署名シークレット
	AdminToken string `envconfig:"ADMIN_TOKEN"` // 管理API用
	// ADMIN_TOKENの代わりにbcryptハッシュで持つ場合
	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr    string `envconfig:"REDIS_ADDR"`
	KafkaBrokers string `envconfig:"KAFKA_BROKERS"` // カンマ区切り
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"mall.orders"`

	// falseなら注文は支払いなしでWAIT_SHIPから始まる
	PaymentEnabled bool `envconfig:"PAYMENT_ENABLED" default:"true"`

	WxPay WxPay
}

// WeChat Pay v3
type WxPay struct {
	AppID            string `envconfig:"WX_APP_ID"`
	MchID            string `envconfig:"WX_MCH_ID"`
	CertSerialNo     string `envconfig:"WX_CERT_SERIAL_NO"`
	APIv3Key         string `envconfig:"WX_API_V3_KEY"`
	PrivateKeyPath   string `envconfig:"WX_PRIVATE_KEY_PATH"`
	PlatformCertPath string `envconfig:"WX_PLATFORM_CERT_PATH"`
	NotifyURL        string `envconfig:"WX_NOTIFY_URL"`
	APIBase          string `envconfig:"WX_API_BASE" default:"https://api.mch.weixin.qq.com"`
}

// 下单に必要な項目が揃っているか
func (w WxPay) Configured() bool {
	return w.AppID != "" && w.MchID != "" && w.CertSerialNo != "" && w.PrivateKeyPath != "" && w.NotifyURL != ""
}

func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Loadは.env（あれば）と環境変数から読む
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// 必須チェック
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.StorageDriver {
	case DriverFile:
		if c.FileStorePath == "" {
			return errors.New("FILE_STORE_PATH is required")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" && c.PostgresHost == "" {
			return errors.New("DATABASE_URL or POSTGRES_HOST is required")
		}
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be file, postgres or mysql: %q", c.StorageDriver)
	}

	// 鍵は32バイト
	if c.WxPay.APIv3Key != "" && len(c.WxPay.APIv3Key) != 32 {
		return errors.New("WX_API_V3_KEY must be 32 bytes")
	}
	// 応答の検証に証明書ファイルか自動ダウンロード（APIv3鍵）のどちらかが要る
	if c.WxPay.Configured() && c.WxPay.APIv3Key == "" && c.WxPay.PlatformCertPath == "" {
		return errors.New("WX_API_V3_KEY or WX_PLATFORM_CERT_PATH is required when wechat pay is configured")
	}
	return nil
}
