// Package frame holds the decoders that split a dongle byte stream into
// wM-Bus frames. The decoders never keep state; the caller owns the buffer
// and removes Result.Length bytes from its head after every Full or Text.
package frame

import "fmt"

// Status is the outcome of one decode step.
type Status int

const (
	// Partial means more bytes are needed; nothing may be consumed.
	Partial Status = iota
	// Full means a frame of Result.Length bytes starts the buffer.
	Full
	// Error means the buffer is corrupt and has been discarded.
	Error
	// Text means the buffer starts with a line that is not a frame,
	// typically a response to a command.
	Text
)

func (s Status) String() string {
	switch s {
	case Partial:
		return "partial"
	case Full:
		return "full"
	case Error:
		return "error"
	case Text:
		return "text"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Variant distinguishes the two CUL line formats.
type Variant int

const (
	// VariantA lines start with "b" directly followed by the hex data.
	VariantA Variant = iota
	// VariantB lines start with "bY"; their length field includes the CRC.
	VariantB
)

// Result describes where the next frame lies in the buffer.
type Result struct {
	Status Status
	// Length is the number of bytes to consume from the buffer head.
	Length int
	// PayloadOffset and PayloadLength locate the payload within the frame.
	PayloadOffset int
	PayloadLength int
	// Skipped counts garbage bytes in front of a resynchronized frame.
	Skipped int
	Variant Variant
}
