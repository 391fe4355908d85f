// Package b64 implements the standard padded base64 encoding used for
// HTTP Basic credentials.
package b64

import (
	"errors"
	"math"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var ErrLengthOverflow = errors.New("b64: input too long")

// maxInput is the longest input whose encoded length still fits in an int.
const maxInput = (math.MaxInt / 4) * 3

// Encode returns src encoded with the standard alphabet and '=' padding.
func Encode(src []byte) (string, error) {
	if len(src) > maxInput {
		return "", ErrLengthOverflow
	}
	out := make([]byte, 0, (len(src)+2)/3*4)

	i := 0
	for ; i+3 <= len(src); i += 3 {
		v := uint(src[i])<<16 | uint(src[i+1])<<8 | uint(src[i+2])
		out = append(out,
			alphabet[v>>18&0x3f],
			alphabet[v>>12&0x3f],
			alphabet[v>>6&0x3f],
			alphabet[v&0x3f],
		)
	}

	switch len(src) - i {
	case 2:
		v := uint(src[i])<<16 | uint(src[i+1])<<8
		out = append(out, alphabet[v>>18&0x3f], alphabet[v>>12&0x3f], alphabet[v>>6&0x3f], '=')
	case 1:
		v := uint(src[i]) << 16
		out = append(out, alphabet[v>>18&0x3f], alphabet[v>>12&0x3f], '=', '=')
	}
	return string(out), nil
}

// EncodeString is Encode for string input.
func EncodeString(s string) (string, error) {
	return Encode([]byte(s))
}
