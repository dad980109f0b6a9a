package media_sdp

import (
	"fmt"

	"github.com/pkg/errors"
)

// SDPErrorCode определяет коды ошибок для SDP операций
type SDPErrorCode int

const (
	ErrorCodeInvalidConfig SDPErrorCode = iota + 2000
	ErrorCodeSDPGeneration
	ErrorCodeSDPParsing
	ErrorCodeIncompatibleCodec
	ErrorCodeInvalidDirection
)

// SDPError представляет ошибку в SDP операциях
type SDPError struct {
	Code    SDPErrorCode
	Message string
	Wrapped error
}

// NewSDPError создает новую SDP ошибку
func NewSDPError(code SDPErrorCode, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapSDPError оборачивает существующую ошибку в SDPError
func WrapSDPError(code SDPErrorCode, err error, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Wrapped: err,
	}
}

// Error реализует интерфейс error
func (e *SDPError) Error() string {
	msg := fmt.Sprintf("SDP Error [%d]: %s", e.Code, e.Message)
	if e.Wrapped != nil {
		msg += fmt.Sprintf(" - Wrapped: %v", e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку для поддержки errors.Is/As
func (e *SDPError) Unwrap() error {
	return e.Wrapped
}

// HasCode сообщает, содержит ли err SDPError с кодом code
func HasCode(err error, code SDPErrorCode) bool {
	var e *SDPError
	return errors.As(err, &e) && e.Code == code
}
