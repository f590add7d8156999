package codec

import "errors"

var (
	ErrInvalidPointer = errors.New("codec: destination must be a non-nil pointer")
	ErrUnexpectedEOF  = errors.New("codec: unexpected end of input")
	ErrTrailingBytes  = errors.New("codec: trailing bytes after value")
	ErrInvalidBool    = errors.New("codec: invalid boolean octet")
	ErrLengthTooLarge = errors.New("codec: length exceeds remaining input")
	ErrNineBytePrefix = errors.New("codec: expected 0xff prefix for 9-byte natural")

	ErrUnsupportedType = "codec: unsupported type: %v"
	ErrEncodingField   = "codec: encoding field '%s': %w"
	ErrDecodingField   = "codec: decoding field '%s': %w"
)
