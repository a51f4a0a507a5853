package database

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"gorm.io/gorm"

	pkgerrors "exam-timetable/pkg/errors"
)

// ── 作用域锁命名空间 ──

const (
	ScopePublish  = "timetable_publish" // 按学期会话串行化发布
	ScopeETL      = "staging_etl"       // 按学期会话串行化 ETL
	ScopeVersion  = "timetable_version" // 按版本串行化冲突重算与排考调整
	ScopeCatalog  = "constraint_catalog"
	ScopeActivate = "session_activate"
)

// Locker 作用域锁：在持有 (namespace, key) 锁的单个事务内执行 fn。
// 同一作用域的调用严格串行，不同作用域互不影响。
type Locker interface {
	Transaction(ctx context.Context, namespace, key string, fn func(tx *gorm.DB) error) error
}

// NewLocker 按方言选择实现：PostgreSQL 使用事务级 advisory lock，
// 其他方言（测试用 SQLite）使用进程内按键互斥锁，持有期覆盖整个事务。
func NewLocker(db *gorm.DB) Locker {
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLocker{db: db}
	}
	return &memoryLocker{db: db, slots: make(map[string]*lockSlot)}
}

// AdvisoryKey 将命名空间与键哈希为 pg_advisory_xact_lock 使用的 64 位键
func AdvisoryKey(namespace, key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// ── PostgreSQL advisory lock ──

type pgAdvisoryLocker struct {
	db *gorm.DB
}

func (l *pgAdvisoryLocker) Transaction(ctx context.Context, namespace, key string, fn func(tx *gorm.DB) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 事务提交或回滚时自动释放
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", AdvisoryKey(namespace, key)).Error; err != nil {
			return fmt.Errorf("获取作用域锁 %s:%s 失败: %w", namespace, key, err)
		}
		return fn(tx)
	})
}

// ── 进程内按键互斥 ──

type lockSlot struct {
	ch   chan struct{}
	refs int
}

type memoryLocker struct {
	db    *gorm.DB
	mu    sync.Mutex
	slots map[string]*lockSlot
}

func (l *memoryLocker) Transaction(ctx context.Context, namespace, key string, fn func(tx *gorm.DB) error) error {
	name := namespace + ":" + key
	if err := l.acquire(ctx, name); err != nil {
		return err
	}
	defer l.release(name)

	return l.db.WithContext(ctx).Transaction(fn)
}

func (l *memoryLocker) acquire(ctx context.Context, name string) error {
	l.mu.Lock()
	slot, ok := l.slots[name]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[name] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		slot.refs--
		if slot.refs == 0 {
			delete(l.slots, name)
		}
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", pkgerrors.ErrLockTimeout, name)
	}
}

func (l *memoryLocker) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot := l.slots[name]
	<-slot.ch
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, name)
	}
}
