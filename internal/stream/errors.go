// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes stream errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRequest
	KindTransport
	KindStatus
	KindDecode
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned (or passed to OnError) for every failure of a request.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}

// Sentinel errors for errors.Is checks.
var (
	ErrRequest   = &Error{Kind: KindRequest, Message: "invalid request"}
	ErrTransport = &Error{Kind: KindTransport, Message: "stream transport failed"}
	ErrStatus    = &Error{Kind: KindStatus, Message: "unexpected response status"}
	ErrDecode    = &Error{Kind: KindDecode, Message: "malformed response"}
)

// IsStatus reports whether err is a non-success response with the given code.
// A code of 0 matches any status error.
func IsStatus(err error, code int) bool {
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindStatus {
		return false
	}
	return code == 0 || se.StatusCode == code
}

func statusError(resp *http.Response, serverMsg string) *Error {
	msg := "request failed: " + resp.Status
	if serverMsg != "" {
		msg = serverMsg
	}
	return &Error{Kind: KindStatus, StatusCode: resp.StatusCode, Message: msg}
}
