// Package dto holds the request bodies and the JSON envelope shared by every endpoint.
package dto

// Response is the envelope every endpoint answers with:
// {"success": true, "data": ...} or {"success": false, "error": "message", "code": "CODE"}
type Response struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// ValidationDetail names one invalid request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success envelope
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewErrorResponse creates an error envelope
func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Success:   false,
		Error:     message,
		Code:      code,
		RequestID: requestID,
	}
}

// WithDetails attaches extra context to an error envelope
func (r Response) WithDetails(details map[string]any) Response {
	if len(details) > 0 {
		r.Details = details
	}
	return r
}

// NewValidationErrorResponse creates a 400 envelope listing the invalid fields
func NewValidationErrorResponse(message, requestID string, fields []ValidationDetail) Response {
	r := NewErrorResponse(ErrCodeValidation, message, requestID)
	if len(fields) > 0 {
		r.Details = map[string]any{"fields": fields}
	}
	return r
}
