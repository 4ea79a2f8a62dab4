// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request carried unusable input.
var ErrValidation = errors.New("validation failed")

// ErrThresholdExceeded indicates a user reached the admin-set prompt cutoff.
var ErrThresholdExceeded = errors.New("prompt threshold exceeded")

// ErrConfiguration indicates the service is missing required configuration
// (for example an upstream API key).
var ErrConfiguration = errors.New("configuration error")

// ErrUpstream indicates an external model, tool or OCR call failed.
var ErrUpstream = errors.New("upstream failure")

// ErrEmptyName is returned when a conversation rename resolves to an empty name.
var ErrEmptyName = errors.New("conversation name cannot be empty")

// ErrLastConversation is returned when deleting the only remaining conversation.
var ErrLastConversation = errors.New("cannot delete the last remaining conversation")

// ErrNoValidAttachments is returned when no attachment survived decoding.
var ErrNoValidAttachments = errors.New("no valid attachments")

// ErrOCRParseFailed is returned when OCR produced no text for any attachment.
var ErrOCRParseFailed = errors.New("ocr produced no text")
