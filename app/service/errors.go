package service

import "errors"

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrGateway             = errors.New("gateway error")
	ErrPersistence         = errors.New("persistence error")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrPaymentNotSucceeded = errors.New("payment not succeeded")
	ErrAlreadyConfirmed    = errors.New("payment intent already confirmed")
	ErrNotFound            = errors.New("not found")
)
