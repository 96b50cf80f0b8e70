package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Fatal kinds abort a run, the rest are recovered in place.
var (
	ErrRetrieval    = errors.New("retrieval failed")
	ErrParse        = errors.New("parse failed")
	ErrAnalysisItem = errors.New("analysis item failed")
	ErrGeneration   = errors.New("generation failed")
	ErrConfig       = errors.New("invalid configuration")
	ErrInvalidInput = errors.New("invalid input")
)

// StageError attaches the failing pipeline stage to an error.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage name carried by err, if any.
func StageOf(err error) (string, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// HTTPStatusCode maps an error to the status returned by the HTTP API.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrRetrieval):
		return http.StatusBadGateway
	case errors.Is(err, ErrParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
