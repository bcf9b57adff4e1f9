package db

import (
	"fmt"

	"mall/internal/config"
	"mall/internal/domain/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はSTORAGE_DRIVERに応じてDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch cfg.StorageDriver {
	case config.DriverMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("MYSQL_DSN is required")
		}
		return gorm.Open(mysql.Open(cfg.MySQLDSN), gcfg)
	case config.DriverPostgres:
		return gorm.Open(postgres.Open(PostgresDSN(cfg)), gcfg)
	}
	return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
}

// DATABASE_URL があれば最優先で使う
func PostgresDSN(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresSSLMode,
	)
}

// テーブル作成
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.Product{},
		&model.ProductSKU{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderChangeLog{},
		&model.WelfareCode{},
		&model.WelfareCodeItem{},
		&model.WelfareCodeUsage{},
		&model.Payment{},
		&model.InventoryAdjustment{},
	)
}
