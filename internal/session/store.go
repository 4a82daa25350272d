// Package session хранит состояние диалогов клиентов с блокировкой на каждого клиента.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry[S any] struct {
	mu      sync.Mutex
	value   S
	touched time.Time
	dead    bool
}

// Store хранит сессии по идентификатору клиента. Обработчики одного клиента
// выполняются последовательно, разных клиентов параллельно.
type Store[S any] struct {
	mu      sync.Mutex
	entries map[int64]*entry[S]
	now     func() time.Time
}

// NewStore создаёт пустое хранилище сессий.
func NewStore[S any]() *Store[S] {
	return &Store[S]{
		entries: make(map[int64]*entry[S]),
		now:     time.Now,
	}
}

func (s *Store[S]) acquire(key int64) *entry[S] {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry[S]{touched: s.now()}
		s.entries[key] = e
	}
	return e
}

// With вызывает fn под блокировкой сессии key. Отсутствующая сессия создаётся
// с нулевым значением. Если fn возвращает false, сессия удаляется.
func (s *Store[S]) With(key int64, fn func(v *S) bool) {
	for {
		e := s.acquire(key)
		e.mu.Lock()
		if e.dead {
			// запись удалена очисткой между acquire и Lock
			e.mu.Unlock()
			continue
		}

		keep := fn(&e.value)
		e.touched = s.now()
		if !keep {
			e.dead = true
			var zero S
			e.value = zero

			s.mu.Lock()
			if s.entries[key] == e {
				delete(s.entries, key)
			}
			s.mu.Unlock()
		}
		e.mu.Unlock()
		return
	}
}

// Len возвращает количество активных сессий.
func (s *Store[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep удаляет сессии, простаивающие дольше idle. Занятые сессии пропускаются.
func (s *Store[S]) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.touched) > idle {
			e.dead = true
			delete(s.entries, key)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// StartSweeper периодически удаляет заброшенные сессии до отмены контекста.
func (s *Store[S]) StartSweeper(ctx context.Context, interval, idle time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(idle); n > 0 {
				logger.Debug("idle sessions swept", zap.Int("count", n))
			}
		}
	}
}
