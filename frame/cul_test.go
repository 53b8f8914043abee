package frame

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func culLine(prefix string, payload []byte) []byte {
	return []byte(prefix + strings.ToUpper(hex.EncodeToString(payload)) + "1F2E\r\n")
}

func TestCheckCUL_Partial(t *testing.T) {
	for _, in := range []string{"", "b", "bY2544", "CMODE\r"} {
		res := CheckCUL([]byte(in))
		assert.Equal(t, Partial, res.Status, "input %q", in)
	}
}

func TestCheckCUL_TextLine(t *testing.T) {
	buf := []byte("TMODE\r\nb")
	res := CheckCUL(buf)
	assert.Equal(t, Text, res.Status)
	assert.Equal(t, 7, res.Length)
}

func TestCheckCUL_VariantARoundTrip(t *testing.T) {
	payload := []byte{0x1e, 0x44, 0x2d, 0x2c, 0x99, 0x87, 0x34, 0x76, 0x1b, 0x16}
	line := culLine("b", payload)

	res := CheckCUL(line)
	require.Equal(t, Full, res.Status)
	assert.Equal(t, len(line), res.Length)
	assert.Equal(t, VariantA, res.Variant)
	assert.Equal(t, 1, res.PayloadOffset)
	assert.Equal(t, len(line)-7, res.PayloadLength)

	got, err := CULPayload(line, res)
	require.NoError(t, err)
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

// In the Y variant the length field also counts the two CRC bytes, so the
// decoded length byte is two less than the one on the wire.
func TestCheckCUL_VariantBRoundTrip(t *testing.T) {
	body := []byte{0x44, 0x2d, 0x2c, 0x99, 0x87, 0x34, 0x76, 0x1b, 0x16}
	wire := append([]byte{byte(len(body) + 2)}, body...)
	line := culLine("bY", wire)

	res := CheckCUL(line)
	require.Equal(t, Full, res.Status)
	assert.Equal(t, VariantB, res.Variant)
	assert.Equal(t, 2, res.PayloadOffset)
	assert.Equal(t, len(line)-8, res.PayloadLength)

	got, err := CULPayload(line, res)
	require.NoError(t, err)
	require.Len(t, got, int(wire[0])-2+1)
	assert.Equal(t, byte(len(body)), got[0])
	assert.Equal(t, body, got[1:])
	assert.Equal(t, strings.ToUpper(hex.EncodeToString(wire[:1])), string(line[2:4]), "input buffer is not modified")
}

func TestCheckCUL_OnlyFirstLineIsConsumed(t *testing.T) {
	first := culLine("b", []byte{0x0a, 0x44, 0x01})
	buf := append(append([]byte(nil), first...), []byte("CMODE\r\n")...)

	res := CheckCUL(buf)
	require.Equal(t, Full, res.Status)
	assert.Equal(t, len(first), res.Length)

	res = CheckCUL(buf[res.Length:])
	assert.Equal(t, Text, res.Status)
}

func TestCULPayload_OddHexLength(t *testing.T) {
	line := []byte("b123ABCD\r\n")
	res := CheckCUL(line)
	require.Equal(t, Full, res.Status)
	require.Equal(t, 3, res.PayloadLength)

	got, err := CULPayload(line, res)
	assert.ErrorIs(t, err, ErrOddHexLength)
	assert.Equal(t, []byte{0x12}, got)
}

func TestCULPayload_BadCharacters(t *testing.T) {
	line := []byte("b12ZZ34ABCD\r\n")
	got, err := CULPayload(line, CheckCUL(line))
	assert.ErrorIs(t, err, ErrInvalidHex)
	assert.Equal(t, []byte{0x12}, got)
}

func TestCULPayload_TooShort(t *testing.T) {
	line := []byte("bAB\r\n")
	res := CheckCUL(line)
	require.Equal(t, Full, res.Status)
	assert.Zero(t, res.PayloadLength)

	got, err := CULPayload(line, res)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "partial", Partial.String())
	assert.Equal(t, "text", Text.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
