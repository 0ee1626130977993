package domain

import "errors"

// Таксономия ошибок ядра. Хранилища переводят ошибки драйвера в эти
// значения, транспорт отображает их в коды статуса. Любая другая ошибка
// считается неожиданным сбоем хранилища.
var (
	ErrDuplicateHandle    = errors.New("handle already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBanned             = errors.New("user is banned")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
)
