// Package policy собирает чистые решающие функции системы: кто из акторов
// считается персоналом, с каким статусом рождается пост и как классифицируется
// устройство клиента. Все проверки строковые и нарочно вынесены в одно место.
package policy

import (
	"strings"

	"github.com/UkralStul/bunker-community-service/internal/domain"
)

// staffMarkers - подстроки ролей, дающие право управлять иерархией.
// Проверка нестрогая: подстрока в верхнем регистре, не точное совпадение.
// Роль "Subadministrador" проходит по "ADMIN" - это сохраненное поведение,
// на него полагаются существующие развертывания.
var staffMarkers = []string{"MODERADOR", "ADMIN", "ENTIDADE"}

// CanStaff сообщает, вправе ли актор с данной ролью менять роли других
// участников. Это единственная проверка полномочий во всей системе.
func CanStaff(role string) bool {
	upper := strings.ToUpper(role)
	for _, marker := range staffMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// SubmitStatus возвращает статус нового поста по роли автора на момент
// публикации. Сравнение точное и чувствительное к регистру: в очередь
// модерации попадают только посты роли "Humano".
func SubmitStatus(authorRole string) string {
	if authorRole == domain.RoleHuman {
		return domain.StatusPending
	}
	return domain.StatusApproved
}

// mobileMarkers - фрагменты подписи клиента, означающие мобильное устройство.
var mobileMarkers = []string{"mobile", "android", "iphone"}

// ClassifyDevice классифицирует клиента по строке подписи (User-Agent).
// Подпись - недоверенный ввод, функция чистая и без побочных эффектов.
func ClassifyDevice(signature string) string {
	lower := strings.ToLower(signature)
	for _, marker := range mobileMarkers {
		if strings.Contains(lower, marker) {
			return domain.DeviceMobile
		}
	}
	return domain.DevicePC
}
