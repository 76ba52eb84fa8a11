package forward

import "errors"

var (
	ErrValidation = errors.New("forward: invalid request")
	ErrNotFound   = errors.New("forward: call not found")
	ErrUpstream   = errors.New("forward: upstream dispatch failed")
	ErrThrottled  = errors.New("forward: too many forwards in flight")
)

const (
	MsgMissingTargetURL = "Missing targetUrl in the request body!"
	MsgMissingMethod    = "Missing method in the request body!"
	MsgInvalidBody      = "Invalid request body!"
	MsgNotFound         = "Webhook Call not found!"
	MsgUpstream         = "Error forwarding the call!"
	MsgThrottled        = "Too many forwards in flight for this service!"
)

// ValidationError carries the message shown to the caller. It matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
