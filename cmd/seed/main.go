package main

import (
	"context"
	"time"

	"mall/internal/config"
	"mall/internal/domain/model"
	"mall/internal/infra/db"
	"mall/internal/infra/logger"
	repo "mall/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// 動作確認用の商品・SKU・福利コードを入れる
func main() {
	cfg, err := config.Load(".env", "../.env")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	storage, err := db.OpenStorage(cfg, log)
	if err != nil {
		log.Fatal("open storage failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	//ファイルストアはまとめて書いて、Closeで書き出す
	write := storage.Tx.WithinTx
	if storage.File != nil {
		write = storage.File.Update
	}

	err = write(ctx, func(r repo.TxRepos) error {
		return seed(ctx, r, log)
	})
	if cerr := storage.Close(); cerr != nil {
		log.Error("close storage failed", zap.Error(cerr))
	}
	if err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
	log.Info("seed done")
}

func seed(ctx context.Context, r repo.TxRepos, log *zap.Logger) error {
	tee, err := r.Products().Create(ctx, model.Product{
		Title:           "Cotton T-shirt",
		PriceCent:       3900,
		Stock:           0,
		Status:          model.ProductStatusOn,
		ShippingFeeCent: model.DefaultShippingFeeCent,
		FreeShippingQty: model.DefaultFreeShippingQty,
	})
	if err != nil {
		return err
	}
	for _, s := range []struct {
		title string
		code  string
		size  string
	}{
		{"White / M", "TS-W-M", "M"},
		{"White / L", "TS-W-L", "L"},
	} {
		code := s.code
		sku, err := r.Products().CreateSKU(ctx, model.ProductSKU{
			ProductID: tee.ID,
			SkuTitle:  s.title,
			SkuCode:   &code,
			SkuAttrs:  datatypes.JSON(`{"color":"white","size":"` + s.size + `"}`),
			PriceCent: 3900,
			Stock:     50,
			Status:    model.ProductStatusOn,
		})
		if err != nil {
			return err
		}
		log.Info("seeded sku", zap.Int64("product_id", tee.ID), zap.Int64("sku_id", sku.ID))
	}

	mug, err := r.Products().Create(ctx, model.Product{
		Title:           "Enamel mug",
		PriceCent:       1800,
		Stock:           100,
		Status:          model.ProductStatusOn,
		ShippingFeeCent: 1000,
		FreeShippingQty: 3,
	})
	if err != nil {
		return err
	}
	log.Info("seeded product", zap.Int64("product_id", mug.ID))

	gift, err := r.Products().Create(ctx, model.Product{
		Title:           "Welfare gift box",
		Status:          model.ProductStatusOn,
		IsWelfare:       true,
		ShippingFeeCent: model.DefaultShippingFeeCent,
		FreeShippingQty: 1,
	})
	if err != nil {
		return err
	}

	wc, err := r.WelfareCodes().Create(ctx, model.WelfareCode{
		Code:              "654321",
		ProductID:         gift.ID,
		PriceCent:         500,
		OriginalPriceCent: 500,
		Status:            model.WelfareCodeStatusActive,
		MaxUsage:          1,
	}, []model.WelfareCodeItem{
		{SkuCode: "W1", SkuTitle: "Gift item", Quantity: 1, PriceCent: 500},
	})
	if err != nil {
		return err
	}
	log.Info("seeded welfare code", zap.Int64("product_id", gift.ID), zap.String("code", wc.Code))
	return nil
}
