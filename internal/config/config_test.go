package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", " FILE ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverFile, cfg.StorageDriver)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, "mall.orders", cfg.KafkaTopic)
	assert.True(t, cfg.PaymentEnabled)
	assert.Equal(t, "https://api.mch.weixin.qq.com", cfg.WxPay.APIBase)
	assert.False(t, cfg.WxPay.Configured())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nPAYMENT_ENABLED=false\n"), 0o600))

	// godotenvは既存の環境変数を上書きしないので、テスト後に消えるよう先に登録しておく
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PAYMENT_ENABLED", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	require.NoError(t, os.Unsetenv("PAYMENT_ENABLED"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.False(t, cfg.PaymentEnabled)
}

func TestValidate(t *testing.T) {
	base := Config{Port: "8080", JWTSecret: "s", StorageDriver: DriverFile, FileStorePath: "/tmp/x.json"}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"no jwt secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"file without path", func(c *Config) { c.FileStorePath = "" }, "FILE_STORE_PATH is required"},
		{"mysql without dsn", func(c *Config) { c.StorageDriver = DriverMySQL }, "MYSQL_DSN is required"},
		{"postgres with host", func(c *Config) { c.StorageDriver = DriverPostgres; c.PostgresHost = "db" }, ""},
		{"postgres without target", func(c *Config) { c.StorageDriver = DriverPostgres }, "DATABASE_URL or POSTGRES_HOST is required"},
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "STORAGE_DRIVER must be"},
		{"short api v3 key", func(c *Config) { c.WxPay.APIv3Key = "short" }, "WX_API_V3_KEY must be 32 bytes"},
		{"api v3 key", func(c *Config) { c.WxPay.APIv3Key = "0123456789abcdef0123456789abcdef" }, ""},
		{"wxpay without verification source", func(c *Config) {
			c.WxPay = WxPay{AppID: "wx", MchID: "m", CertSerialNo: "s", PrivateKeyPath: "/k.pem", NotifyURL: "https://x/notify"}
		}, "WX_API_V3_KEY or WX_PLATFORM_CERT_PATH is required"},
		{"wxpay with platform cert", func(c *Config) {
			c.WxPay = WxPay{AppID: "wx", MchID: "m", CertSerialNo: "s", PrivateKeyPath: "/k.pem", NotifyURL: "https://x/notify", PlatformCertPath: "/cert.pem"}
		}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestBrokers(t *testing.T) {
	assert.Nil(t, Config{}.Brokers())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, Config{KafkaBrokers: " k1:9092, ,k2:9092 "}.Brokers())
}

func TestWxPayConfigured(t *testing.T) {
	w := WxPay{AppID: "wx", MchID: "m", CertSerialNo: "s", PrivateKeyPath: "/k.pem", NotifyURL: "https://x/notify"}
	assert.True(t, w.Configured())
	w.NotifyURL = ""
	assert.False(t, w.Configured())
}
