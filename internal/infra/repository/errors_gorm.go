package repository

import (
	"errors"
	"fmt"

	repo "mall/internal/repository"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres: lock_not_available / serialization_failure / deadlock_detected
var pgBusyCodes = map[string]bool{
	"55P03": true,
	"40001": true,
	"40P01": true,
}

// MySQL: lock wait timeout / deadlock
var mysqlBusyNumbers = map[uint16]bool{
	1205: true,
	1213: true,
}

// DBのエラーをリポジトリのエラーに寄せる
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgBusyCodes[pgErr.Code] {
		return fmt.Errorf("%w: %v", repo.ErrBusy, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && mysqlBusyNumbers[myErr.Number] {
		return fmt.Errorf("%w: %v", repo.ErrBusy, err)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
