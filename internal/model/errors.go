package model

import "errors"

// ErrInsufficientBalance is wrapped by Settlement implementations when an
// account cannot cover a leg it is asked to pay.
var ErrInsufficientBalance = errors.New("insufficient balance")
