package storage

import (
	"context"

	"github.com/UkralStul/bunker-community-service/internal/domain"
)

// ReviewAction - решение модератора по посту.
type ReviewAction string

const (
	ReviewAccept ReviewAction = "aceitar"
	ReviewReject ReviewAction = "recusar"
)

// Feed - снимок сообщества целиком: участники, посты обоих статусов и все
// комментарии. Хранилище не фильтрует по зрителю, это делает клиент.
type Feed struct {
	Members  []*domain.Profile `json:"membros"`
	Posts    []*domain.Post    `json:"posts"`
	Comments []*domain.Comment `json:"comentarios"`
}

// Storage определяет контракт для хранилищ.
type Storage interface {
	// Учетные записи.
	RegisterUser(ctx context.Context, handle, secret, ip, device string) (*domain.User, error)
	Authenticate(ctx context.Context, handle, secret, device string) (*domain.User, error)
	BanUser(ctx context.Context, handle string) error
	GetProfile(ctx context.Context, handle string) (*domain.Profile, error)
	ListActiveMembers(ctx context.Context) ([]*domain.Profile, error)
	SetAvatar(ctx context.Context, handle, blobName string) error
	ChangeRole(ctx context.Context, target, newRole string) error
	SeedRootUser(ctx context.Context) error

	// Модерация.
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	ReviewPost(ctx context.Context, postID string, action ReviewAction) error
	ListFeed(ctx context.Context) (*Feed, error)

	// Журнал комментариев и сообщений.
	CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error)
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	GetThread(ctx context.Context, a, b string) ([]*domain.Message, error)
	SurveilMessages(ctx context.Context, target string) ([]*domain.Message, error)
}
