package domain

import "time"

// Известные роли. Поле Role хранит произвольную строку, но эти значения
// используются движком модерации и проверкой полномочий.
const (
	RoleHuman     = "Humano"
	RoleModerator = "Moderador"
	RoleAdmin     = "Admin"
	RoleRoot      = "ENTIDADE ABSOLUTA"
)

// Статусы поста.
const (
	StatusPending  = "pendente"
	StatusApproved = "aprovado"
)

// Классы устройств, определяемые по подписи клиента при входе.
const (
	DevicePC     = "PC"
	DeviceMobile = "Celular"
)

// Учетная запись-корень доверия. Пересоздается при каждом старте системы
// и не удаляется обычными операциями.
const (
	RootHandle = "Padoca6i"
	RootSecret = "tuquedeixamano007"
	RootIP     = "0.0.0.0"
)

// User представляет участника сообщества.
type User struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Handle    string    `json:"user" gorm:"type:varchar(255);uniqueIndex;not null"`
	Secret    string    `json:"-" gorm:"type:varchar(255);not null"`
	Role      string    `json:"cargo" gorm:"type:varchar(255);not null"`
	IP        string    `json:"ip" gorm:"type:varchar(64)"`
	Online    bool      `json:"online" gorm:"not null;default:false"`
	Avatar    string    `json:"foto"`
	CreatedAt time.Time `json:"criado_em" gorm:"not null;default:now()"`
	Banned    bool      `json:"banido" gorm:"not null;default:false"`
	Device    string    `json:"dispositivo" gorm:"type:varchar(16)"`
}

// Profile - публичная проекция пользователя: все то же самое, но без секрета.
type Profile struct {
	Handle    string    `json:"user"`
	Role      string    `json:"cargo"`
	IP        string    `json:"ip"`
	Online    bool      `json:"online"`
	Avatar    string    `json:"foto"`
	CreatedAt time.Time `json:"criado_em"`
	Device    string    `json:"dispositivo"`
}

// Profile возвращает публичную проекцию пользователя.
func (u *User) Profile() *Profile {
	return &Profile{
		Handle:    u.Handle,
		Role:      u.Role,
		IP:        u.IP,
		Online:    u.Online,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		Device:    u.Device,
	}
}

// Post представляет пост в ленте сообщества.
type Post struct {
	ID         string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Author     string    `json:"autor" gorm:"type:varchar(255);not null"`
	Title      string    `json:"titulo" gorm:"type:varchar(255);not null"`
	Body       string    `json:"conteudo" gorm:"type:text;not null"`
	AuthorRole string    `json:"cargo_autor" gorm:"type:varchar(255);not null"`
	Attachment string    `json:"anexo"`
	Status     string    `json:"status" gorm:"type:varchar(16);not null;default:'aprovado'"`
	CreatedAt  time.Time `json:"criado_em" gorm:"not null;default:now();index"`
}

// Comment представляет комментарий к посту. PostID - денормализованная
// ссылка без внешнего ключа: комментарий к несуществующему посту допустим.
type Comment struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID    string    `json:"post_id" gorm:"type:uuid;not null;index"`
	Author    string    `json:"autor" gorm:"type:varchar(255);not null"`
	Text      string    `json:"texto" gorm:"type:varchar(2000);not null"`
	CreatedAt time.Time `json:"data" gorm:"not null;default:now()"`
}

// Message представляет личное сообщение. Запись неизменяемая: операций
// редактирования и удаления нет.
type Message struct {
	ID         string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Sender     string    `json:"remetente" gorm:"type:varchar(255);not null;index"`
	Recipient  string    `json:"destinatario" gorm:"type:varchar(255);not null;index"`
	Text       string    `json:"texto" gorm:"type:text"`
	Attachment string    `json:"anexo"`
	CreatedAt  time.Time `json:"data" gorm:"not null;default:now()"`
}
