// Package errors provides custom error types and definitions for the application.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 401 or 404, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault. Codes 502xx are reserved
// for failures reported by the payment gateway and return HTTP Status 502.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// Payment flow messages are user facing and kept in Korean.
var (
	// Authentication errors (401)
	ErrUnauthorized = Error{Code: 40001, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("authentication required"), LogLevel: "info"}

	// Validation errors (400)
	ErrInvalidPaymentRequest = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("요청 본문 검증에 실패했습니다.")}
	ErrMalformedBody         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid JSON request body")}
	ErrInvalidMagazineData   = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid magazine data provided")}
	ErrInvalidWebhook        = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid webhook payload or signature")}
	ErrValidationFailed      = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("요청 값이 올바르지 않습니다.")}
	ErrMalformedURLParam     = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid URL parameter")}

	// Not found errors (404)
	ErrMagazineNotFound = Error{Code: 40401, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("magazine not found")}

	// Conflict errors (409)
	ErrNotificationInProgress = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("이미 처리 중인 알림입니다."), LogLevel: "info"}

	// Server errors (500)
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("서버 내부 오류가 발생했습니다."), LogLevel: "error"}
	ErrGatewaySecretMissing       = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("결제 게이트웨이 비밀키가 설정되지 않았습니다."), LogLevel: "error"}
	ErrStorageNotConfigured       = Error{Code: 50004, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("저장소가 설정되지 않았습니다."), LogLevel: "error"}
	ErrInvalidPaymentDetail       = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("PortOne 결제 정보를 확인하지 못했습니다."), LogLevel: "error"}
	ErrPaymentStoreFailed         = Error{Code: 50006, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("결제 정보를 저장하지 못했습니다."), LogLevel: "error"}
	ErrCancellationFailed         = Error{Code: 50007, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("구독 취소를 처리하지 못했습니다."), LogLevel: "error"}
	ErrStorageFailed              = Error{Code: 50008, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: storage operation failed"), LogLevel: "error"}

	// Payment gateway errors (502)
	ErrGatewayRequestFailed = Error{Code: 50201, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("PortOne 결제 요청 중 오류가 발생했습니다."), LogLevel: "error"}
	ErrGatewayFetchFailed   = Error{Code: 50202, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("PortOne 결제 정보를 조회하지 못했습니다."), LogLevel: "error"}
	ErrScheduleFailed       = Error{Code: 50203, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("다음 구독 결제를 예약하지 못했습니다."), LogLevel: "error"}
)
