package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 在庫不足（減算しなかった）
	ErrInsufficientStock = errors.New("insufficient stock")

	// 商品またはSKUが非公開
	ErrOffline = errors.New("offline")

	// 福利コードが使えない（条件付き更新が0件）
	ErrCodeUnavailable = errors.New("welfare code unavailable")

	// 行ロック待ちのタイムアウト・デッドロック。リトライ可能
	ErrBusy = errors.New("storage busy")
)
