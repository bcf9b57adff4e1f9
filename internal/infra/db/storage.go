package db

import (
	"fmt"

	"mall/internal/config"
	"mall/internal/infra/filestore"
	infraRepo "mall/internal/infra/repository"
	repo "mall/internal/repository"

	"go.uber.org/zap"
)

// Storage は選んだバックエンドのトランザクション境界
type Storage struct {
	Tx repo.TransactionManager

	// ファイルストアのときだけ（初期データ投入用）
	File *filestore.TxManager

	close func() error
}

func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// STORAGE_DRIVERに応じて開く。postgres/mysqlはマイグレーションもする
func OpenStorage(cfg config.Config, logger *zap.Logger) (*Storage, error) {
	if cfg.StorageDriver == config.DriverFile {
		st, err := filestore.Open(cfg.FileStorePath,
			filestore.WithLockTimeout(cfg.LockTimeout),
			filestore.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		tm := filestore.NewTxManager(st)
		logger.Info("storage ready", zap.String("driver", cfg.StorageDriver), zap.String("path", st.Path()))
		return &Storage{Tx: tm, File: tm, close: st.Close}, nil
	}

	gdb, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.StorageDriver, err)
	}
	if err := Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	logger.Info("storage ready", zap.String("driver", cfg.StorageDriver))
	return &Storage{Tx: infraRepo.NewTxManagerGorm(gdb, cfg.LockTimeout), close: sqlDB.Close}, nil
}
