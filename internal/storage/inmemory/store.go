package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/UkralStul/bunker-community-service/internal/domain"
	"github.com/UkralStul/bunker-community-service/internal/policy"
	"github.com/UkralStul/bunker-community-service/internal/storage"

	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти. Используется в тестах и для
// локального запуска без базы.
type Store struct {
	mu             sync.RWMutex
	users          map[string]*domain.User // ключ - handle
	posts          map[string]*domain.Post
	postOrder      []string // id постов в порядке создания
	comments       map[string]*domain.Comment
	commentOrder   []string            // id комментариев в порядке создания
	commentsByPost map[string][]string // map[postID][]commentID
	messages       []*domain.Message
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		users:          make(map[string]*domain.User),
		posts:          make(map[string]*domain.Post),
		comments:       make(map[string]*domain.Comment),
		commentsByPost: make(map[string][]string),
	}
}

// === Identity Methods ===

func (s *Store) RegisterUser(ctx context.Context, handle, secret, ip, device string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Совпадение точное, с учетом регистра: "Ana" и "ana" - разные имена.
	if _, ok := s.users[handle]; ok {
		return nil, domain.ErrDuplicateHandle
	}

	user := &domain.User{
		ID:        uuid.NewString(),
		Handle:    handle,
		Secret:    secret,
		Role:      domain.RoleHuman,
		IP:        ip,
		Device:    device,
		CreatedAt: time.Now().UTC(),
	}
	s.users[handle] = user
	return user, nil
}

func (s *Store) Authenticate(ctx context.Context, handle, secret, device string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[handle]
	if !ok || user.Secret != secret {
		return nil, domain.ErrInvalidCredentials
	}
	if user.Banned {
		return nil, domain.ErrBanned
	}

	user.Online = true
	user.Device = device
	return user, nil
}

// BanUser идемпотентно помечает пользователя забаненным и уводит в офлайн.
// Несуществующий handle молча игнорируется, как и повторный бан.
func (s *Store) BanUser(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[handle]; ok {
		user.Banned = true
		user.Online = false
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, handle string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[handle]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return user.Profile(), nil
}

// ListActiveMembers возвращает проекции всех незабаненных пользователей.
// Порядок не гарантируется.
func (s *Store) ListActiveMembers(ctx context.Context) ([]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeMembersLocked(), nil
}

func (s *Store) activeMembersLocked() []*domain.Profile {
	members := make([]*domain.Profile, 0, len(s.users))
	for _, u := range s.users {
		if u.Banned {
			continue
		}
		members = append(members, u.Profile())
	}
	return members
}

func (s *Store) SetAvatar(ctx context.Context, handle, blobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[handle]; ok {
		user.Avatar = blobName
	}
	return nil
}

// ChangeRole перезаписывает роль без всякой валидации нового значения.
// Проверку полномочий актора выполняет вызывающая сторона через policy.
func (s *Store) ChangeRole(ctx context.Context, target, newRole string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[target]; ok {
		user.Role = newRole
	}
	return nil
}

// SeedRootUser переутверждает корневую учетную запись: создает ее, если
// нет, иначе возвращает ей секрет, роль и снимает бан.
func (s *Store) SeedRootUser(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[domain.RootHandle]
	if !ok {
		s.users[domain.RootHandle] = &domain.User{
			ID:        uuid.NewString(),
			Handle:    domain.RootHandle,
			Secret:    domain.RootSecret,
			Role:      domain.RoleRoot,
			IP:        domain.RootIP,
			CreatedAt: time.Now().UTC(),
		}
		return nil
	}
	user.Secret = domain.RootSecret
	user.Role = domain.RoleRoot
	user.IP = domain.RootIP
	user.Banned = false
	return nil
}

// === Moderation Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post.ID = uuid.NewString()
	post.CreatedAt = time.Now().UTC()
	post.Status = policy.SubmitStatus(post.AuthorRole)
	s.posts[post.ID] = post
	s.postOrder = append(s.postOrder, post.ID)
	return post, nil
}

func (s *Store) ReviewPost(ctx context.Context, postID string, action storage.ReviewAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return domain.ErrNotFound
	}

	switch action {
	case storage.ReviewAccept:
		// Идемпотентно: повторный accept уже одобренного поста не ошибка.
		post.Status = domain.StatusApproved
		return nil
	case storage.ReviewReject:
		delete(s.posts, postID)
		removed := s.commentsByPost[postID]
		for _, commentID := range removed {
			delete(s.comments, commentID)
		}
		delete(s.commentsByPost, postID)
		s.postOrder = dropIDs(s.postOrder, postID)
		s.commentOrder = dropIDs(s.commentOrder, removed...)
		return nil
	default:
		return fmt.Errorf("unknown review action %q", action)
	}
}

// dropIDs убирает перечисленные id, сохраняя порядок остальных. Порядковые
// срезы сжимаются при каждом удалении и не растут бесконечно.
func dropIDs(ids []string, drop ...string) []string {
	dropSet := make(map[string]struct{}, len(drop))
	for _, id := range drop {
		dropSet[id] = struct{}{}
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := dropSet[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) ListFeed(ctx context.Context) (*storage.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Посты - свежие сверху, комментарии - в хронологическом порядке.
	// Порядок создания хранится явно в срезах id.
	posts := make([]*domain.Post, 0, len(s.posts))
	for i := len(s.postOrder) - 1; i >= 0; i-- {
		posts = append(posts, s.posts[s.postOrder[i]])
	}

	comments := make([]*domain.Comment, 0, len(s.comments))
	for _, id := range s.commentOrder {
		comments = append(comments, s.comments[id])
	}

	return &storage.Feed{
		Members:  s.activeMembersLocked(),
		Posts:    posts,
		Comments: comments,
	}, nil
}

// === Ledger Methods ===

// CreateComment добавляет комментарий без проверки существования поста:
// висячие ссылки допустимы.
func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment.ID = uuid.NewString()
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.ID] = comment
	s.commentOrder = append(s.commentOrder, comment.ID)
	s.commentsByPost[comment.PostID] = append(s.commentsByPost[comment.PostID], comment.ID)
	return comment, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// GetThread возвращает переписку пары в обоих направлениях, старые сначала.
func (s *Store) GetThread(ctx context.Context, a, b string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Журнал append-only, так что порядок добавления и есть хронология.
	thread := make([]*domain.Message, 0)
	for _, m := range s.messages {
		if (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a) {
			thread = append(thread, m)
		}
	}
	return thread, nil
}

// SurveilMessages возвращает все сообщения, где цель - отправитель или
// получатель, новые сначала. Полномочия вызывающего здесь не проверяются.
func (s *Store) SurveilMessages(ctx context.Context, target string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]*domain.Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Sender == target || m.Recipient == target {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}
