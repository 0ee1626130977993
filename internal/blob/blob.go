// Package blob - внешний коллаборатор для бинарных вложений: сохранить байты
// под именем, отдать байты по имени. Ядро передает имена насквозь и никогда
// не заглядывает в содержимое файлов.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/UkralStul/bunker-community-service/internal/domain"
)

// Store определяет контракт хранилища вложений.
type Store interface {
	Save(name string, data []byte) (string, error)
	Serve(name string) ([]byte, error)
}

// Disk хранит вложения в одном каталоге на диске.
type Disk struct {
	dir string
}

var _ Store = (*Disk)(nil)

// NewDisk создает каталог, если его нет, и возвращает хранилище.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Save записывает данные под очищенным именем и возвращает имя, под которым
// файл реально сохранен. Коллизии имен не дедуплицируются: последняя запись
// побеждает.
func (d *Disk) Save(name string, data []byte) (string, error) {
	stored := Sanitize(name)
	if stored == "" {
		return "", errors.New("empty file name")
	}
	if err := os.WriteFile(filepath.Join(d.dir, stored), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", stored, err)
	}
	return stored, nil
}

// Serve возвращает байты по сохраненному имени.
func (d *Disk) Serve(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize приводит имя файла к безопасному виду: отбрасывает каталоги и
// заменяет все вне [A-Za-z0-9._-]. Пустой результат означает негодное имя.
func Sanitize(name string) string {
	name = filepath.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}
