package main

import (
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mall/internal/config"
	"mall/internal/events"
	"mall/internal/handler"
	"mall/internal/infra/cache"
	"mall/internal/infra/db"
	"mall/internal/infra/logger"
	"mall/internal/payment/wxpay"
	"mall/internal/server"
	"mall/internal/usecase"

	"github.com/wechatpay-apiv3/wechatpay-go/core/downloader"
	"go.uber.org/zap"
)

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

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	//ストア（ファイル or DB）
	storage, err := db.OpenStorage(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("close storage failed", zap.Error(err))
		}
	}()

	//通知の重複チェック
	var dedup usecase.NotifyDeduper = cache.NewMemoryDeduper()
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		dedup = cache.NewRedisDeduper(rdb, "wxpay")
	}

	//注文イベント
	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		log.Info("kafka publisher enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("close publisher failed", zap.Error(err))
		}
	}()

	//WeChat Pay
	var (
		payClient usecase.PaymentClient
		closer    usecase.PaymentCloser
		verifier  usecase.NotifyVerifier
	)
	var platformCerts []*x509.Certificate
	if cfg.WxPay.PlatformCertPath != "" {
		cert, err := wxpay.LoadCertificate(cfg.WxPay.PlatformCertPath)
		if err != nil {
			return err
		}
		platformCerts = append(platformCerts, cert)
		verifier = wxpay.NewCertificateVerifier(cert)
	}
	if cfg.WxPay.Configured() {
		key, err := wxpay.LoadPrivateKey(cfg.WxPay.PrivateKeyPath)
		if err != nil {
			return err
		}
		//自動ダウンロードのときは初回の証明書取得を待つ
		initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		c, err := wxpay.NewClient(initCtx, wxpay.ClientConfig{
			AppID:         cfg.WxPay.AppID,
			MchID:         cfg.WxPay.MchID,
			SerialNo:      cfg.WxPay.CertSerialNo,
			NotifyURL:     cfg.WxPay.NotifyURL,
			APIBase:       cfg.WxPay.APIBase,
			PlatformCerts: platformCerts,
			APIv3Key:      cfg.WxPay.APIv3Key,
		}, key, nil)
		cancel()
		if err != nil {
			return err
		}
		payClient, closer = c, c
		//証明書ファイルがなければ自動ダウンロードした証明書で通知も検証する
		if verifier == nil {
			verifier = wxpay.NewVerifier(downloader.MgrInstance().GetCertificateVisitor(cfg.WxPay.MchID))
		}
	} else {
		log.Warn("wechat pay not configured, prepay is disabled")
	}

	//Usecase生成
	welfareUC := usecase.NewWelfareCodeUsecase(storage.Tx, log)
	orderUC := usecase.NewOrderUsecase(storage.Tx, publisher, closer, log, cfg.PaymentEnabled)
	paymentUC := usecase.NewPaymentUsecase(storage.Tx, usecase.PaymentDeps{
		Welfare:   welfareUC,
		Client:    payClient,
		Verifier:  verifier,
		Dedup:     dedup,
		Publisher: publisher,
		APIv3Key:  cfg.WxPay.APIv3Key,
	}, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(storage.Tx, closer, log)

	//Handler生成
	e := server.New(cfg, server.Handlers{
		Order:      handler.NewOrderHandler(orderUC),
		Welfare:    handler.NewWelfareHandler(welfareUC),
		Payment:    handler.NewPaymentHandler(paymentUC, log),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	}, log)

	//Server起動
	addr := cfg.Port
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("storage", cfg.StorageDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
