package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/bunker-community-service/internal/domain"
	"github.com/UkralStul/bunker-community-service/internal/policy"
	"github.com/UkralStul/bunker-community-service/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true, // ошибки драйвера приходят как gorm.Err*
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// AutoMigrate идемпотентна: добавление новой колонки (например, класса
	// устройства) к уже существующей таблице пользователей не падает, если
	// колонка уже есть.
	if err := db.AutoMigrate(&domain.User{}, &domain.Post{}, &domain.Comment{}, &domain.Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// === Identity Methods ===

func (s *Store) RegisterUser(ctx context.Context, handle, secret, ip, device string) (*domain.User, error) {
	user := &domain.User{
		Handle: handle,
		Secret: secret,
		Role:   domain.RoleHuman,
		IP:     ip,
		Device: device,
	}

	// Проверка занятости имени и вставка в одной транзакции.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrDuplicateHandle
		}
		return tx.Create(user).Error
	})
	if err != nil {
		// Гонка двух одновременных регистраций: проигравший проходит
		// проверку счетчиком, но упирается в уникальный индекс.
		return nil, translateRegisterError(err)
	}
	return user, nil
}

// translateRegisterError переводит нарушение уникального индекса по handle
// в ошибку таксономии; остальное уходит как есть.
func translateRegisterError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateHandle
	}
	return err
}

func (s *Store) Authenticate(ctx context.Context, handle, secret, device string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "handle = ? AND secret = ?", handle, secret).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvalidCredentials
			}
			return err
		}
		if user.Banned {
			return domain.ErrBanned
		}
		// Обновленный класс устройства попадает и в ответ, не только в базу.
		user.Online = true
		user.Device = device
		return tx.Model(&user).Updates(map[string]interface{}{
			"online": true,
			"device": device,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// BanUser идемпотентно банит пользователя. Отсутствующий handle не ошибка:
// затронуто ноль строк, результат тот же.
func (s *Store) BanUser(ctx context.Context, handle string) error {
	return s.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("handle = ?", handle).
		Updates(map[string]interface{}{"banned": true, "online": false}).Error
}

func (s *Store) GetProfile(ctx context.Context, handle string) (*domain.Profile, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "handle = ?", handle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return user.Profile(), nil
}

func (s *Store) ListActiveMembers(ctx context.Context) ([]*domain.Profile, error) {
	var users []*domain.User
	if err := s.db.WithContext(ctx).Where("banned = ?", false).Find(&users).Error; err != nil {
		return nil, err
	}
	members := make([]*domain.Profile, len(users))
	for i, u := range users {
		members[i] = u.Profile()
	}
	return members, nil
}

func (s *Store) SetAvatar(ctx context.Context, handle, blobName string) error {
	return s.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("handle = ?", handle).
		Update("avatar", blobName).Error
}

func (s *Store) ChangeRole(ctx context.Context, target, newRole string) error {
	return s.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("handle = ?", target).
		Update("role", newRole).Error
}

// SeedRootUser переутверждает корневую учетную запись при старте системы.
func (s *Store) SeedRootUser(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root domain.User
		err := tx.First(&root, "handle = ?", domain.RootHandle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&domain.User{
				Handle: domain.RootHandle,
				Secret: domain.RootSecret,
				Role:   domain.RoleRoot,
				IP:     domain.RootIP,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&root).Updates(map[string]interface{}{
			"secret": domain.RootSecret,
			"role":   domain.RoleRoot,
			"ip":     domain.RootIP,
			"banned": false,
		}).Error
	})
}

// === Moderation Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	post.Status = policy.SubmitStatus(post.AuthorRole)
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Store) ReviewPost(ctx context.Context, postID string, action storage.ReviewAction) error {
	switch action {
	case storage.ReviewAccept:
		result := s.db.WithContext(ctx).
			Model(&domain.Post{}).
			Where("id = ?", postID).
			Update("status", domain.StatusApproved)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	case storage.ReviewReject:
		// Пост и его комментарии удаляются в одной транзакции: сбой между
		// удалениями не должен оставить осиротевшие комментарии.
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Delete(&domain.Post{}, "id = ?", postID)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.ErrNotFound
			}
			return tx.Delete(&domain.Comment{}, "post_id = ?", postID).Error
		})
	default:
		return fmt.Errorf("unknown review action %q", action)
	}
}

func (s *Store) ListFeed(ctx context.Context) (*storage.Feed, error) {
	members, err := s.ListActiveMembers(ctx)
	if err != nil {
		return nil, err
	}

	var posts []*domain.Post
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&posts).Error; err != nil {
		return nil, err
	}

	var comments []*domain.Comment
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, err
	}

	return &storage.Feed{Members: members, Posts: posts, Comments: comments}, nil
}

// === Ledger Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	// Существование поста не проверяется: ссылка денормализована.
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) GetThread(ctx context.Context, a, b string) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := s.db.WithContext(ctx).
		Where("(sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)", a, b, b, a).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

func (s *Store) SurveilMessages(ctx context.Context, target string) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := s.db.WithContext(ctx).
		Where("sender = ? OR recipient = ?", target, target).
		Order("created_at DESC").
		Find(&msgs).Error
	return msgs, err
}
