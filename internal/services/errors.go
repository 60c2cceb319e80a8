// Package services implements the business logic for suggestion generation,
// locked-reply unlocking, and account status. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrUnknownAction is returned when the action type is not one of
	// opener, reply, or ocr.
	ErrUnknownAction = errors.New("unknown action type")

	// ErrEmptyContext is returned when a generation request carries neither
	// prompt context nor an image to transcribe.
	ErrEmptyContext = errors.New("prompt context is empty")

	// ErrContextTooLong is returned when the prompt context exceeds the
	// configured rune limit.
	ErrContextTooLong = errors.New("prompt context too long")

	// ErrReplyNotFound indicates that the requested reply does not exist or
	// is not accessible to the current caller.
	ErrReplyNotFound = errors.New("reply not found")
)
