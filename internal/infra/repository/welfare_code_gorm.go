package repository

import (
	"context"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WelfareCodeGormRepository struct {
	db *gorm.DB
}

func NewWelfareCodeGormRepository(db *gorm.DB) *WelfareCodeGormRepository {
	return &WelfareCodeGormRepository{db: db}
}

// 使えるコードを FOR UPDATE で取る
func (r *WelfareCodeGormRepository) LockActive(ctx context.Context, productID int64, code string) (model.WelfareCode, error) {
	var c model.WelfareCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("product_id = ? AND code = ? AND status = ? AND used_count < max_usage",
			productID, code, model.WelfareCodeStatusActive).
		First(&c).Error
	if err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	return c, nil
}

func (r *WelfareCodeGormRepository) FindActive(ctx context.Context, productID int64, code string) (model.WelfareCode, error) {
	var c model.WelfareCode
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND code = ? AND status = ? AND used_count < max_usage",
			productID, code, model.WelfareCodeStatusActive).
		First(&c).Error
	if err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	return c, nil
}

// DISABLEDは「使い切り」ではなく「無効」扱い
func (r *WelfareCodeGormRepository) FindExhausted(ctx context.Context, productID int64, code string) (model.WelfareCode, error) {
	var c model.WelfareCode
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND code = ? AND status <> ? AND (status = ? OR used_count >= max_usage)",
			productID, code, model.WelfareCodeStatusDisabled, model.WelfareCodeStatusExhausted).
		First(&c).Error
	if err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	return c, nil
}

func (r *WelfareCodeGormRepository) ListItems(ctx context.Context, welfareCodeID int64) ([]model.WelfareCodeItem, error) {
	var items []model.WelfareCodeItem
	err := r.db.WithContext(ctx).Where("welfare_code_id = ?", welfareCodeID).Order("id asc").Find(&items).Error
	if err != nil {
		return []model.WelfareCodeItem{}, mapErr(err)
	}
	return items, nil
}

// MySQLはSETを左から評価するので、statusの判定をused_countの加算より先に書く
const consumeOnceSQL = `UPDATE welfare_codes SET
 status = CASE WHEN used_count + 1 >= max_usage THEN ? ELSE status END,
 used_count = used_count + 1,
 consumed_order_no = ?,
 consumed_at = ?,
 updated_at = ?
 WHERE product_id = ? AND code = ? AND status = ? AND used_count < max_usage`

func (r *WelfareCodeGormRepository) ConsumeOnce(ctx context.Context, productID int64, code string, orderNo string, now time.Time) (model.WelfareCode, error) {
	res := r.db.WithContext(ctx).Exec(consumeOnceSQL,
		model.WelfareCodeStatusExhausted,
		orderNo, now, now,
		productID, code, model.WelfareCodeStatusActive,
	)
	if res.Error != nil {
		return model.WelfareCode{}, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.WelfareCode{}, repo.ErrCodeUnavailable
	}

	var c model.WelfareCode
	err := r.db.WithContext(ctx).Where("product_id = ? AND code = ?", productID, code).First(&c).Error
	if err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	return c, nil
}

func (r *WelfareCodeGormRepository) HasUsage(ctx context.Context, orderNo string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.WelfareCodeUsage{}).Where("order_no = ?", orderNo).Count(&n).Error
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (r *WelfareCodeGormRepository) RecordUsage(ctx context.Context, usage model.WelfareCodeUsage) error {
	if err := r.db.WithContext(ctx).Create(&usage).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

// コードとテンプレートをまとめて作る
func (r *WelfareCodeGormRepository) Create(ctx context.Context, c model.WelfareCode, items []model.WelfareCodeItem) (model.WelfareCode, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	if len(items) == 0 {
		return c, nil
	}
	rows := make([]model.WelfareCodeItem, len(items))
	copy(rows, items)
	for i := range rows {
		rows[i].WelfareCodeID = c.ID
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = c.CreatedAt
		}
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	return c, nil
}

func (r *WelfareCodeGormRepository) FindByID(ctx context.Context, id int64) (model.WelfareCode, error) {
	var c model.WelfareCode
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return model.WelfareCode{}, mapErr(err)
	}
	return c, nil
}

func (r *WelfareCodeGormRepository) ListUsage(ctx context.Context, welfareCodeID int64) ([]model.WelfareCodeUsage, error) {
	var us []model.WelfareCodeUsage
	err := r.db.WithContext(ctx).Where("welfare_code_id = ?", welfareCodeID).Order("id asc").Find(&us).Error
	if err != nil {
		return []model.WelfareCodeUsage{}, mapErr(err)
	}
	return us, nil
}
