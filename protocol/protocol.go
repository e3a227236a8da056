// Package protocol implements the RepRap-style line protocol spoken between
// the host tools and the controller firmware.
//
// A host line is "N<number> <command>*<checksum>" where the checksum is the
// XOR of every byte before the '*'. The firmware answers each line with zero
// or more report lines followed by "ok" or "error: <message>".
package protocol

// Version represents the stepctl firmware version
const Version = "0.1.0"

// Protocol constants
const (
	LineMax = 96 // Maximum line length accepted by the firmware, terminator excluded

	ResponseOK          = "ok"
	ResponseErrorPrefix = "error:"

	// ResendPrefix starts the line sent before the error answer to a
	// corrupt or out-of-sequence line. It carries the number expected next.
	ResendPrefix = "rs "

	// CommentPrefix marks firmware log lines. They never belong to a
	// command's report.
	CommentPrefix = "//"

	ChecksumSeparator = '*'
	LineNumberPrefix  = 'N'
)
