package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mall/internal/domain/model"
	repo "mall/internal/repository"

	"go.uber.org/zap"
)

const (
	DefaultFlushDelay  = 100 * time.Millisecond
	DefaultLockTimeout = 5 * time.Second
)

type Meta struct {
	NextIDs   map[string]int64 `json:"nextIds"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ファイルに保存されるドキュメント全体
type Document struct {
	Meta                 Meta                        `json:"_meta"`
	Products             []model.Product             `json:"products"`
	ProductSKUs          []model.ProductSKU          `json:"product_skus"`
	Orders               []model.Order               `json:"orders"`
	OrderItems           []model.OrderItem           `json:"order_items"`
	OrderChangeLogs      []model.OrderChangeLog      `json:"order_change_logs"`
	WelfareCodes         []model.WelfareCode         `json:"welfare_codes"`
	WelfareCodeItems     []model.WelfareCodeItem     `json:"welfare_code_items"`
	WelfareCodeUsage     []model.WelfareCodeUsage    `json:"welfare_code_usage"`
	Payments             []model.Payment             `json:"payments"`
	InventoryAdjustments []model.InventoryAdjustment `json:"inventory_adjustments"`
}

func newDocument(now time.Time) *Document {
	d := &Document{Meta: Meta{CreatedAt: now, UpdatedAt: now}}
	d.fillMissing()
	return d
}

// 古いファイルに無いテーブルを足す
func (d *Document) fillMissing() {
	if d.Meta.NextIDs == nil {
		d.Meta.NextIDs = map[string]int64{}
	}
	if d.Products == nil {
		d.Products = []model.Product{}
	}
	if d.ProductSKUs == nil {
		d.ProductSKUs = []model.ProductSKU{}
	}
	if d.Orders == nil {
		d.Orders = []model.Order{}
	}
	if d.OrderItems == nil {
		d.OrderItems = []model.OrderItem{}
	}
	if d.OrderChangeLogs == nil {
		d.OrderChangeLogs = []model.OrderChangeLog{}
	}
	if d.WelfareCodes == nil {
		d.WelfareCodes = []model.WelfareCode{}
	}
	if d.WelfareCodeItems == nil {
		d.WelfareCodeItems = []model.WelfareCodeItem{}
	}
	if d.WelfareCodeUsage == nil {
		d.WelfareCodeUsage = []model.WelfareCodeUsage{}
	}
	if d.Payments == nil {
		d.Payments = []model.Payment{}
	}
	if d.InventoryAdjustments == nil {
		d.InventoryAdjustments = []model.InventoryAdjustment{}
	}
}

type Option func(*Store)

func WithFlushDelay(d time.Duration) Option {
	return func(s *Store) { s.flushDelay = d }
}

func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// JSONファイル1つを持つストア。1プロセスから使う前提。
// docへのアクセスはすべてsemを持った状態で行う
type Store struct {
	path string

	// サイズ1のセマフォ（ctxとタイムアウトで待ちを打ち切れるようにchanにしている）
	sem chan struct{}

	doc   *Document
	dirty bool

	timerMu sync.Mutex
	timer   *time.Timer
	closed  bool

	flushDelay  time.Duration
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Open はファイルを読み込む。無ければ空のドキュメントを作って書き出す
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		sem:         make(chan struct{}, 1),
		flushDelay:  DefaultFlushDelay,
		lockTimeout: DefaultLockTimeout,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = newDocument(s.now())
		if err := s.save(); err != nil {
			return nil, err
		}
	case err != nil:
		s.logger.Warn("filestore: read failed, using empty document", zap.String("path", path), zap.Error(err))
		s.doc = newDocument(s.now())
	default:
		var d Document
		if err := json.Unmarshal(b, &d); err != nil {
			s.logger.Warn("filestore: corrupt document, using empty document", zap.String("path", path), zap.Error(err))
			s.doc = newDocument(s.now())
		} else {
			d.fillMissing()
			s.doc = &d
		}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) acquire(ctx context.Context) error {
	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		t := time.NewTimer(s.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: filestore lock wait exceeded %s", repo.ErrBusy, s.lockTimeout)
	}
}

func (s *Store) release() { <-s.sem }

// 原子書き込み（tmpに書いてからrename）。semを持って呼ぶ
func (s *Store) save() error {
	s.stopTimer()

	s.doc.Meta.UpdatedAt = s.now()
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("filestore: mkdir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filestore: rename: %w", err)
	}
	s.dirty = false
	return nil
}

// tx外の書き込み。flushDelay後にまとめて書く
func (s *Store) markDirty() {
	s.dirty = true

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.flushDelay, s.flushLater)
}

func (s *Store) stopTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) flushLater() {
	if err := s.acquire(context.Background()); err != nil {
		s.logger.Warn("filestore: delayed flush skipped", zap.Error(err))
		return
	}
	defer s.release()
	if !s.dirty {
		return
	}
	if err := s.save(); err != nil {
		s.logger.Error("filestore: delayed flush failed", zap.Error(err))
	}
}

// Flush は保留中の書き込みをすぐに書き出す
func (s *Store) Flush(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	if !s.dirty {
		s.stopTimer()
		return nil
	}
	return s.save()
}

func (s *Store) Close() error {
	s.timerMu.Lock()
	s.closed = true
	s.timerMu.Unlock()
	return s.Flush(context.Background())
}

// 採番。_meta.nextIds を進める
func (s *Store) nextID(table string) int64 {
	cur := s.doc.Meta.NextIDs[table]
	if cur < 1 {
		cur = 1
	}
	s.doc.Meta.NextIDs[table] = cur + 1
	return cur
}

// 明示IDで入れたときに採番が追い越されないようにする
func (s *Store) assignID(table string, id int64) int64 {
	if id <= 0 {
		return s.nextID(table)
	}
	if s.doc.Meta.NextIDs[table] <= id {
		s.doc.Meta.NextIDs[table] = id + 1
	}
	return id
}

func (s *Store) snapshot() ([]byte, error) {
	return json.Marshal(s.doc)
}

func (s *Store) restore(snap []byte, dirty bool) {
	var d Document
	if err := json.Unmarshal(snap, &d); err != nil {
		// 自分でエンコードしたものなので起きないはず
		s.logger.Error("filestore: restore snapshot failed", zap.Error(err))
		return
	}
	d.fillMissing()
	s.doc = &d
	s.dirty = dirty
}
