package bybit

import (
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
)

// Bybit v5 return codes the adapter reacts to
const (
	ErrCodeServerTimeout       = 10000
	ErrCodeRecvWindow          = 10002
	ErrCodeInvalidAPIKey       = 10003
	ErrCodeInvalidSignature    = 10004
	ErrCodePermissionDenied    = 10005
	ErrCodeRateLimitExceeded   = 10006
	ErrCodeServerBusy          = 10016
	ErrCodeIPRateLimit         = 10018
	ErrCodeServiceRestarting   = 10019
	ErrCodeSystemFrequency     = 10429
	ErrCodeOrderNotFound       = 110001
	ErrCodeInsufficientBalance = 110007
	ErrCodeInvalidQuantity     = 110020
	ErrCodeDuplicateLinkID     = 110072

	ErrCodeSpotBackendTimeout      = 170007
	ErrCodeSpotInsufficientBalance = 170131
	ErrCodeSpotQtyTooSmall         = 170136
	ErrCodeSpotAmountTooSmall      = 170140
	ErrCodeSpotDuplicateLinkID     = 170141
	ErrCodeSpotOrderNotFound       = 170213
)

const component = "bybit"

// classifyRetCode turns a non-zero retCode into a categorized error.
// Codes not listed are treated as business rejections and never retried.
func classifyRetCode(op string, code int, msg string) error {
	switch code {
	case ErrCodeRateLimitExceeded, ErrCodeIPRateLimit, ErrCodeSystemFrequency:
		return &boterrors.BotError{Category: boterrors.ErrorCategoryRateLimit, Component: component, Operation: op, Message: msg, Code: code}
	case ErrCodeServerTimeout, ErrCodeServerBusy, ErrCodeRecvWindow, ErrCodeServiceRestarting, ErrCodeSpotBackendTimeout:
		return &boterrors.BotError{Category: boterrors.ErrorCategoryTransient, Component: component, Operation: op, Message: msg, Code: code}
	case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodePermissionDenied:
		return &boterrors.BotError{Category: boterrors.ErrorCategoryCredentials, Component: component, Operation: op, Message: msg, Code: code}
	case ErrCodeInsufficientBalance, ErrCodeSpotInsufficientBalance:
		return boterrors.NewBusinessError(boterrors.ErrInsufficientBalance, component, op, code, msg)
	case ErrCodeSpotQtyTooSmall, ErrCodeSpotAmountTooSmall:
		return boterrors.NewBusinessError(boterrors.ErrBelowMinimum, component, op, code, msg)
	case ErrCodeOrderNotFound, ErrCodeSpotOrderNotFound:
		return boterrors.NewBusinessError(boterrors.ErrOrderNotFound, component, op, code, msg)
	case ErrCodeDuplicateLinkID, ErrCodeSpotDuplicateLinkID:
		return boterrors.NewBusinessError(boterrors.ErrDuplicateOrder, component, op, code, msg)
	default:
		return boterrors.NewBusinessError(boterrors.ErrInvalidOrder, component, op, code, msg)
	}
}

// decodeResult checks retCode and unmarshals Result into out
func decodeResult(op string, response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return &boterrors.BotError{Category: boterrors.ErrorCategoryTransient, Component: component, Operation: op,
			Message: fmt.Sprintf("invalid response type %T", response)}
	}
	if serverResp.RetCode != 0 {
		return classifyRetCode(op, serverResp.RetCode, serverResp.RetMsg)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s result: %w", op, err)
	}
	return nil
}

// transportError tags SDK level failures (HTTP, DNS, timeouts) as transient
func transportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if cat := boterrors.CategoryOf(err); cat == boterrors.ErrorCategoryTimeout {
		return &boterrors.BotError{Category: boterrors.ErrorCategoryTimeout, Component: component, Operation: op, Message: "request timed out", Underlying: err}
	}
	return boterrors.WrapError(err, boterrors.ErrorCategoryTransient, component, op)
}
