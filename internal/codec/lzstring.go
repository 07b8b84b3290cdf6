package codec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	lzstring "github.com/daku10/go-lz-string"
)

// Tokens use the lz-string "encoded URI component" format already carried by
// published share links, so they stay readable by the web client.

const uriSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+-$"

const (
	// maxTokenLength bounds the input handed to the decompressor. LZW output grows
	// quadratically with the code count, so the input is what keeps work bounded.
	maxTokenLength = 4096

	// maxDecodedUnits bounds the decoded script in UTF-16 code units.
	maxDecodedUnits = 1 << 20
)

// ErrInvalidToken is returned for tokens that are not a valid compressed stream.
var ErrInvalidToken = errors.New("invalid route token")

// CompressToURIComponent compresses s into a token that needs no further escaping
// inside a URL query value.
func CompressToURIComponent(s string) (string, error) {
	token, err := lzstring.CompressToEncodedURIComponent(s)
	if err != nil {
		return "", fmt.Errorf("compress route script: %w", err)
	}
	return token, nil
}

// DecompressFromURIComponent reverses CompressToURIComponent. A space is read as '+'
// because form decoding turns '+' into space.
func DecompressFromURIComponent(token string) (out string, err error) {
	if token == "" || len(token) > maxTokenLength {
		return "", ErrInvalidToken
	}
	token = strings.ReplaceAll(token, " ", "+")

	// Any character outside the alphabet marks a corrupt token.
	for i := 0; i < len(token); i++ {
		if strings.IndexByte(uriSafeAlphabet, token[i]) < 0 {
			return "", ErrInvalidToken
		}
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: %v", ErrInvalidToken, r)
		}
	}()

	out, err = lzstring.DecompressFromEncodedURIComponent(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if out == "" || len(utf16.Encode([]rune(out))) > maxDecodedUnits {
		return "", ErrInvalidToken
	}
	return out, nil
}
