package client

import (
	"fmt"

	"transcribe-upload/internal/client/uploader"
)

// ResponseResult is either Success or Failure.
type ResponseResult interface {
	isResponseResult()
}

type Success struct {
	StatusCode int
	// Payload is the response body serialized as a JSON string.
	Payload []byte
}

type Failure struct {
	Err error
}

func (Success) isResponseResult() {}
func (Failure) isResponseResult() {}

// OperationFailedError covers every way the upload can fail: file access,
// transport, a non-2xx status or an unserializable payload.
type OperationFailedError struct {
	Cause error
}

func (e *OperationFailedError) Error() string {
	return "operation failed: " + e.Cause.Error()
}

func (e *OperationFailedError) Unwrap() error {
	return e.Cause
}

type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("request failed with status code %d", e.StatusCode)
	}

	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

func newResponseResult(resp *uploader.UploadResponse, err error) ResponseResult {
	if err != nil {
		return Failure{Err: &OperationFailedError{Cause: err}}
	}
	if resp == nil {
		return Failure{Err: &OperationFailedError{Cause: fmt.Errorf("empty response")}}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure{Err: &OperationFailedError{Cause: &StatusError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}}}
	}

	payload, err := stringifyBody(resp.Body)
	if err != nil {
		return Failure{Err: &OperationFailedError{Cause: fmt.Errorf("stringify response: %w", err)}}
	}

	return Success{StatusCode: resp.StatusCode, Payload: payload}
}
