package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrVerificationFailed covers wrong, expired and unknown verification codes alike.
	ErrVerificationFailed = errors.New("invalid or expired verification code")
	// ErrSessionMissing occurs when a role session is required but absent.
	ErrSessionMissing = errors.New("session missing")
	// ErrDispatchFailed indicates a verification code could not be queued.
	ErrDispatchFailed = errors.New("verification code dispatch failed")
)
