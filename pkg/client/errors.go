package client

import (
	"fmt"

	"github.com/pkg/errors"
)

// Виды ошибок ядра. Проверяются через errors.Is.
var (
	// ErrBuild - собранное сообщение не прошло проверку обязательных полей
	ErrBuild = errors.New("build error")
	// ErrChallenge - отсутствующий или некорректный вызов аутентификации,
	// либо вызов без учетных данных
	ErrChallenge = errors.New("challenge error")
	// ErrSerialization - ошибка примитивов сообщения/заголовков (URI, SDP)
	ErrSerialization = errors.New("serialization error")
	// ErrResponse - ответ не относится к ожидаемой транзакции или диалогу
	ErrResponse = errors.New("unexpected response")
)

// Конкретные причины, оборачиваемые в Error.
var (
	ErrNoChallenge        = errors.New("response carries no authentication challenge")
	ErrNoCredentials      = errors.New("challenge stored but no credentials configured")
	ErrMissingRealm       = errors.New("challenge has no realm")
	ErrMissingNonce       = errors.New("challenge has no nonce")
	ErrDialogNotFound     = errors.New("dialog not found")
	ErrInvalidDialogState = errors.New("operation not allowed in current dialog state")
)

// Error ошибка операции ядра с указанием вида
type Error struct {
	Kind error  // один из ErrBuild, ErrChallenge, ErrSerialization, ErrResponse
	Op   string // операция, например "register"
	Err  error  // исходная причина
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap позволяет errors.Is находить как вид, так и причину
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func buildError(op string, err error) error {
	return &Error{Kind: ErrBuild, Op: op, Err: err}
}

func challengeError(op string, err error) error {
	return &Error{Kind: ErrChallenge, Op: op, Err: err}
}

func serializationError(op string, err error) error {
	return &Error{Kind: ErrSerialization, Op: op, Err: err}
}

func responseError(op string, err error) error {
	return &Error{Kind: ErrResponse, Op: op, Err: err}
}
