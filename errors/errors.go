package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/vibecoding/magazine-backend/checklist"
	"go.vocdoni.io/dvote/log"
)

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used. Payment flows attach
// the checklist collected so far, which is rendered next to the error.
type Error struct {
	Err        error                // Original error
	Code       int                  // Error code
	HTTPstatus int                  // HTTP status code to return
	LogLevel   string               // Log level for this error (defaults to "debug")
	Data       any                  // Optional data to include in the error response
	Checklist  *checklist.Checklist // Optional steps recorded before the failure
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
// When a checklist is attached the payload follows the payment flows shape.
//
// Example output: {"success":false,"error":"...","code":50201,"checklist":[...]}
func (e Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Success   *bool            `json:"success,omitempty"`
		Error     string           `json:"error"`
		Code      int              `json:"code"`
		Data      any              `json:"data,omitempty"`
		Checklist []checklist.Item `json:"checklist,omitempty"`
	}{
		Error: e.Err.Error(),
		Code:  e.Code,
		Data:  e.Data,
	}
	if e.Checklist != nil {
		success := false
		out.Success = &success
		out.Checklist = e.Checklist.Items()
	}
	return json.Marshal(out)
}

// Error returns the Message contained inside the APIerror
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes the error as JSON and writes it with e.HTTPstatus. 5xx
// errors are always logged, the rest only in debug mode.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}

	pc, file, line, _ := runtime.Caller(1)
	caller := runtime.FuncForPC(pc).Name()

	if e.HTTPstatus >= 500 {
		log.Errorw(e.Err, fmt.Sprintf("API error response [%d]: %s (code: %d, caller: %s, file: %s:%d)",
			e.HTTPstatus, e.Error(), e.Code, caller, file, line))
	} else if log.Level() == log.LogLevelDebug {
		errMsg := fmt.Sprintf("API error response [%d]: %s (code: %d, caller: %s)",
			e.HTTPstatus, e.Error(), e.Code, caller)
		switch e.LogLevel {
		case "info":
			log.Infow(errMsg)
		case "warn":
			log.Warnw(errMsg)
		default:
			log.Debugw(errMsg)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(msg); err != nil {
		log.Warnw("failed to write error response", "error", err)
	}
}

// Withf returns a copy of Error with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	c := e
	c.Err = fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...))
	return c
}

// With returns a copy of Error with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	c := e
	c.Err = fmt.Errorf("%w: %v", e.Err, s)
	return c
}

// WithErr returns a copy of Error with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	c := e
	c.Err = fmt.Errorf("%w: %v", e.Err, err.Error())
	return c
}

// WithMessage returns a copy of Error that reports msg instead of the
// default message, keeping the code and the status.
func (e Error) WithMessage(msg string) Error {
	c := e
	c.Err = fmt.Errorf("%s", msg)
	return c
}

// WithLogLevel returns a copy of Error with the specified log level
func (e Error) WithLogLevel(level string) Error {
	c := e
	c.LogLevel = level
	return c
}

func (e Error) WithData(data any) Error {
	c := e
	c.Data = data
	return c
}

// WithChecklist returns a copy of Error carrying the given checklist.
func (e Error) WithChecklist(cl *checklist.Checklist) Error {
	c := e
	c.Checklist = cl
	return c
}
