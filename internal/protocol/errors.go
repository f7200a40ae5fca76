package protocol

import "errors"

var (
	ErrTokenCount  = errors.New("frame has wrong token count")
	ErrUnknownMode = errors.New("unknown LED mode")
	ErrOverflow    = errors.New("unterminated input exceeds buffer limit")
)
