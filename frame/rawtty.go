package frame

const (
	// RawTTYMinBuffered is the amount of data needed before a header is inspected.
	RawTTYMinBuffered = 11
	// RawTTYTypeMarker is the wM-Bus C-field value SND_NR that follows the length byte.
	RawTTYTypeMarker = 0x44
)

// CheckRawTTY inspects buf for a <len><0x44><payload...> frame. When the
// marker is not where it should be, the buffer is scanned for a length byte
// that is followed by the marker and whose frame ends exactly at the end of
// the buffer. If there is none the buffer is corrupt: the returned slice is
// then empty and Status is Error.
//
// The scan accepts any position that happens to satisfy len+1 == remaining,
// so adversarial data can fake a frame.
func CheckRawTTY(buf []byte) (Result, []byte) {
	if len(buf) < RawTTYMinBuffered {
		return Result{Status: Partial}, buf
	}

	payloadLen := int(buf[0])
	offset := 1
	skipped := 0

	if buf[1] != RawTTYTypeMarker {
		found := false
		for i := 0; i < len(buf)-2; i++ {
			if buf[i+1] == RawTTYTypeMarker && int(buf[i])+1 == len(buf)-i {
				payloadLen = int(buf[i])
				offset = i + 1
				skipped = i
				found = true
				break
			}
		}
		if !found {
			return Result{Status: Error}, buf[:0]
		}
	}

	// A zero length still occupies the marker byte.
	frameLen := offset + max(payloadLen, 1)
	if len(buf) < frameLen {
		return Result{Status: Partial}, buf
	}

	return Result{
		Status:        Full,
		Length:        frameLen,
		PayloadOffset: offset,
		PayloadLength: payloadLen,
		Skipped:       skipped,
	}, buf
}

// RawTTYPayload returns the frame payload with its length byte in front, so
// the result is a self describing wM-Bus telegram. A zero length frame has
// no payload.
func RawTTYPayload(buf []byte, res Result) []byte {
	if res.Status != Full || res.PayloadLength == 0 {
		return nil
	}
	payload := make([]byte, 0, res.PayloadLength+1)
	payload = append(payload, byte(res.PayloadLength))
	return append(payload, buf[res.PayloadOffset:res.PayloadOffset+res.PayloadLength]...)
}
