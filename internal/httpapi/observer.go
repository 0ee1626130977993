package httpapi

import (
	"sync"

	"github.com/UkralStul/bunker-community-service/internal/domain"

	"github.com/google/uuid"
)

// FeedEvent - событие живой ленты: новый пост или новый комментарий.
type FeedEvent struct {
	Kind    string          `json:"kind"` // "post" или "comment"
	Post    *domain.Post    `json:"post,omitempty"`
	Comment *domain.Comment `json:"comment,omitempty"`
}

// FeedObserver хранит каналы подписчиков живой ленты.
type FeedObserver struct {
	mu   sync.RWMutex
	subs map[string]chan FeedEvent
}

// NewFeedObserver - конструктор наблюдателя.
func NewFeedObserver() *FeedObserver {
	return &FeedObserver{subs: make(map[string]chan FeedEvent)}
}

// Subscribe регистрирует подписчика и возвращает его id и канал событий.
func (o *FeedObserver) Subscribe() (string, <-chan FeedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan FeedEvent, 16)
	o.subs[id] = ch
	return id, ch
}

// Unsubscribe снимает подписчика и закрывает его канал.
func (o *FeedObserver) Unsubscribe(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.subs[id]; ok {
		close(ch)
		delete(o.subs, id)
	}
}

// Broadcast рассылает событие всем подписчикам. Отправка неблокирующая:
// медленный подписчик теряет событие, а не тормозит публикацию.
func (o *FeedObserver) Broadcast(ev FeedEvent) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
