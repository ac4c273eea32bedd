package models

import "time"

// Response is the envelope every API endpoint returns.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Message   string     `json:"message,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorBody carries a machine-readable code next to the human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func OK(data any, message string) Response {
	return Response{Success: true, Data: data, Message: message, Timestamp: time.Now().UTC()}
}

func Fail(code, message string) Response {
	return Response{Error: &ErrorBody{Code: code, Message: message}, Timestamp: time.Now().UTC()}
}
