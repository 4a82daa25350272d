package bot

import (
	"context"
	"sync"

	"github.com/mmeshcher/orderbot/internal/chat"
)

// userQueues выполняет события каждого клиента строго в порядке поступления.
// Для клиента с непустой очередью работает ровно одна горутина, она
// завершается, когда очередь опустела. Разные клиенты обрабатываются параллельно.
type userQueues struct {
	mu      sync.Mutex
	pending map[int64][]chat.Update
	wg      sync.WaitGroup
	handle  func(ctx context.Context, u chat.Update)
}

func newUserQueues(handle func(ctx context.Context, u chat.Update)) *userQueues {
	return &userQueues{
		pending: make(map[int64][]chat.Update),
		handle:  handle,
	}
}

// push ставит событие в очередь клиента и запускает обработчик, если его нет.
func (q *userQueues) push(ctx context.Context, u chat.Update) {
	q.mu.Lock()
	queue, running := q.pending[u.UserID]
	q.pending[u.UserID] = append(queue, u)
	q.mu.Unlock()

	if running {
		return
	}

	q.wg.Add(1)
	go q.drain(ctx, u.UserID)
}

func (q *userQueues) drain(ctx context.Context, userID int64) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		queue := q.pending[userID]
		if len(queue) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		next := queue[0]
		q.pending[userID] = queue[1:]
		q.mu.Unlock()

		q.handle(ctx, next)
	}
}

// wait дожидается обработки всех поставленных событий.
func (q *userQueues) wait() {
	q.wg.Wait()
}
