package protocol

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrMissingLineNumber = errors.New("checksum without line number")
	ErrMalformedLine     = errors.New("malformed line")
	ErrLineTooLong       = errors.New("line too long")
)

// Line is a decoded host line
type Line struct {
	Number    uint32
	HasNumber bool
	Command   string
}

// ParseLine strips the optional line number and checksum from raw and
// verifies the checksum when one is present. Unframed lines are accepted
// as-is so a terminal can talk to the firmware directly.
func ParseLine(raw string) (Line, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > LineMax {
		return Line{}, ErrLineTooLong
	}

	var line Line
	body := raw
	if i := strings.LastIndexByte(raw, ChecksumSeparator); i >= 0 {
		want, err := strconv.ParseUint(strings.TrimSpace(raw[i+1:]), 10, 8)
		if err != nil {
			return Line{}, ErrMalformedLine
		}
		body = raw[:i]
		if Checksum(body) != byte(want) {
			return Line{}, ErrChecksumMismatch
		}
		if len(body) == 0 || (body[0] != LineNumberPrefix && body[0] != 'n') {
			return Line{}, ErrMissingLineNumber
		}
	}

	if len(body) > 0 && (body[0] == LineNumberPrefix || body[0] == 'n') {
		end := 1
		for end < len(body) && body[end] >= '0' && body[end] <= '9' {
			end++
		}
		if end == 1 {
			return Line{}, ErrMalformedLine
		}
		n, err := strconv.ParseUint(body[1:end], 10, 32)
		if err != nil {
			return Line{}, ErrMalformedLine
		}
		line.Number = uint32(n)
		line.HasNumber = true
		body = body[end:]
	}

	line.Command = strings.TrimSpace(body)
	return line, nil
}

// LineNumberError reports a numbered line that arrived out of sequence
type LineNumberError struct {
	Expected uint32
	Got      uint32
}

func (e *LineNumberError) Error() string {
	return "line number out of sequence: expected " + strconv.FormatUint(uint64(e.Expected), 10) +
		", got " + strconv.FormatUint(uint64(e.Got), 10)
}

// LineTracker enforces consecutive line numbers on numbered lines.
// Unnumbered lines are not tracked.
type LineTracker struct {
	expected uint32
}

// Accept checks line against the expected number and advances it
func (t *LineTracker) Accept(line Line) error {
	if !line.HasNumber {
		return nil
	}
	if line.Number != t.expected {
		return &LineNumberError{Expected: t.expected, Got: line.Number}
	}
	t.expected++
	return nil
}

// Reset makes n the number of the last accepted line (M110)
func (t *LineTracker) Reset(n uint32) {
	t.expected = n + 1
}

// Expected returns the next line number the tracker accepts
func (t *LineTracker) Expected() uint32 {
	return t.expected
}
