package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	repo "mall/internal/repository"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadInput
	KindNotFound
	KindBusinessRule
	KindInsufficientStock
	KindInvalidCode
	KindStateConflict
	KindUnauthenticated
	KindUnauthorized
	KindUpstream
	KindBusy
)

// レスポンスのcode
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeInvalidParams        = "INVALID_PARAMS"
	CodeNotFound             = "NOT_FOUND"
	CodeWelfareRule          = "WELFARE_RULE"
	CodeSkuOffline           = "SKU_OFFLINE"
	CodeOutOfStock           = "OUT_OF_STOCK"
	CodeInvalidWelfareCode   = "INVALID_WELFARE_CODE"
	CodeWelfareCodeExhausted = "WELFARE_CODE_EXHAUSTED"
	CodeOrderStateConflict   = "ORDER_STATE_CONFLICT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeUpstreamFailure      = "UPSTREAM_FAILURE"
	CodeWxPayNotConfigured   = "WXPAY_NOT_CONFIGURED"
	CodeBusyRetry            = "BUSY_RETRY"
	CodeInternal             = "INTERNAL_ERROR"
)

var kindStatus = map[ErrorKind]int{
	KindInternal:          http.StatusInternalServerError,
	KindBadInput:          http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindBusinessRule:      http.StatusBadRequest,
	KindInsufficientStock: http.StatusBadRequest,
	KindInvalidCode:       http.StatusBadRequest,
	KindStateConflict:     http.StatusConflict,
	KindUnauthenticated:   http.StatusUnauthorized,
	KindUnauthorized:      http.StatusForbidden,
	KindUpstream:          http.StatusBadGateway,
	KindBusy:              http.StatusServiceUnavailable,
}

// usecaseが返すエラー。handlerはStatus/Code/Messageをそのまま返す
type AppError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.Status, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(kind ErrorKind, code, message string) *AppError {
	return &AppError{Kind: kind, Status: kindStatus[kind], Code: code, Message: message}
}

func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	ok := errors.As(err, &ae)
	return ae, ok
}

func badRequest(msg string) error {
	return NewAppError(KindBadInput, CodeBadRequest, msg)
}

func notFound(msg string) error {
	return NewAppError(KindNotFound, CodeNotFound, msg)
}

func stateConflict(msg string) error {
	return NewAppError(KindStateConflict, CodeOrderStateConflict, msg)
}

func unauthenticated() error {
	return NewAppError(KindUnauthenticated, CodeUnauthorized, "unauthorized")
}

// 中身は返さない（ログにだけ出す）
func internal(err error) error {
	return &AppError{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// usecase外のエラーをAppErrorにそろえる
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsAppError(err); ok {
		return err
	}
	if errors.Is(err, repo.ErrBusy) || errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Kind:    KindBusy,
			Status:  http.StatusServiceUnavailable,
			Code:    CodeBusyRetry,
			Message: "server is busy, please retry",
			Err:     err,
		}
	}
	return internal(err)
}
