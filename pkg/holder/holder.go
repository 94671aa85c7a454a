// Package holder 保存每个执行上下文最近一次产生的错误报告。
//
// 槽位以执行上下文标识为键，生命周期与上下文的创建/销毁绑定；
// 每次发布都会覆盖旧报告，不做累积。
package holder

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrContextNotFound 上下文未注册或已关闭
	ErrContextNotFound = errors.New("holder: execution context not found")
	// ErrContextExists 上下文标识重复注册
	ErrContextExists = errors.New("holder: execution context already open")
)

// slot 单个上下文的报告槽位
type slot struct {
	report    string
	hasReport bool
	published uint64
}

// Store 上下文报告槽位集合。
// 同一上下文只在其所属线程上访问，不同上下文可能位于不同 goroutine，因此集合本身加锁。
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// NewStore 创建槽位集合
func NewStore() *Store {
	return &Store{
		slots: make(map[string]*slot),
	}
}

// Open 为上下文创建空槽位
func (s *Store) Open(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[id]; ok {
		return fmt.Errorf("%w: %s", ErrContextExists, id)
	}
	s.slots[id] = &slot{}
	return nil
}

// Close 销毁上下文的槽位，已关闭的上下文重复关闭不报错
func (s *Store) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, id)
}

// Publish 覆盖上下文最近一次的报告
func (s *Store) Publish(id, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContextNotFound, id)
	}
	sl.report = report
	sl.hasReport = true
	sl.published++
	return nil
}

// Last 返回上下文最近一次的报告
func (s *Store) Last(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[id]
	if !ok || !sl.hasReport {
		return "", false
	}
	return sl.report, true
}

// Published 返回上下文累计发布次数（只计数，不保留历史报告）
func (s *Store) Published(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sl, ok := s.slots[id]; ok {
		return sl.published
	}
	return 0
}

// Clear 清空上下文的报告但保留槽位
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContextNotFound, id)
	}
	sl.report = ""
	sl.hasReport = false
	return nil
}

// Len 已打开的上下文数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
