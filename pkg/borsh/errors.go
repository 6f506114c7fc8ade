package borsh

import "errors"

var (
	ErrUnexpectedEOF  = errors.New("borsh: unexpected end of input")
	ErrTrailingBytes  = errors.New("borsh: trailing bytes")
	ErrLengthOverflow = errors.New("borsh: declared length exceeds input")
	ErrInvalidUTF8    = errors.New("borsh: string is not valid utf-8")
	ErrInvalidBool    = errors.New("borsh: invalid bool byte")
	ErrInvalidOption  = errors.New("borsh: invalid option tag")
	ErrU128Range      = errors.New("borsh: value out of u128 range")
)
