package frame

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	culFrameStart    = 'b'
	culVariantMarker = 'Y'
	culCRCHexLen     = 4
)

var (
	// ErrOddHexLength is returned with a payload whose trailing nibble was dropped.
	ErrOddHexLength = errors.New("frame: hex payload has odd length, dropped last char")
	// ErrInvalidHex is returned with the bytes decoded before a bad character.
	ErrInvalidHex = errors.New("frame: hex payload contains bad characters, decode stopped partway")
)

// CheckCUL inspects the first line of buf. A line is
//
//	b[Y]<hex data><4 hex crc>\r\n
//
// and anything else terminated by '\n' is Text.
func CheckCUL(buf []byte) Result {
	if len(buf) == 0 {
		return Result{Status: Partial}
	}
	eol := bytes.IndexByte(buf, '\n')
	if eol < 0 {
		return Result{Status: Partial}
	}
	line := buf[:eol+1]
	if line[0] != culFrameStart {
		return Result{Status: Text, Length: len(line)}
	}

	body := bytes.TrimRight(line, "\r\n")
	res := Result{Status: Full, Length: len(line), PayloadOffset: 1, Variant: VariantA}
	if len(body) > 1 && body[1] == culVariantMarker {
		res.PayloadOffset = 2
		res.Variant = VariantB
	}
	res.PayloadLength = max(len(body)-res.PayloadOffset-culCRCHexLen, 0)
	return res
}

// CULPayload hex decodes the payload of a Full result. Decoding problems are
// reported as an error next to the bytes that could be recovered, which the
// caller should still forward. For VariantB the length field is reduced by
// the two CRC bytes the dongle counts in.
func CULPayload(buf []byte, res Result) ([]byte, error) {
	if res.Status != Full || res.PayloadLength == 0 {
		return nil, nil
	}
	src := buf[res.PayloadOffset : res.PayloadOffset+res.PayloadLength]

	payload, err := DecodeHex(src)
	if res.Variant == VariantB && len(payload) > 0 {
		payload[0] -= 2
	}
	return payload, err
}

// DecodeHex decodes src, dropping a trailing odd nibble and stopping at the
// first non hex character. It always returns what it managed to decode.
func DecodeHex(src []byte) ([]byte, error) {
	var warn error
	if len(src)%2 == 1 {
		src = src[:len(src)-1]
		warn = ErrOddHexLength
	}
	dst := make([]byte, hex.DecodedLen(len(src)))
	n, err := hex.Decode(dst, src)
	if err != nil {
		warn = errors.Join(warn, fmt.Errorf("%w: %v", ErrInvalidHex, err))
	}
	return dst[:n], warn
}
