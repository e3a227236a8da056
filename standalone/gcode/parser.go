package gcode

import (
	"errors"
	"strconv"

	"stepctl/standalone"
)

var (
	ErrMissingCommand = errors.New("gcode: line does not start with G, M or T")
	ErrBadNumber      = errors.New("gcode: malformed number")
)

// Parser handles G-code parsing
type Parser struct{}

// NewParser creates a new G-code parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line of G-code. Blank lines return nil; a
// comment-only line returns an empty command carrying the comment.
// Parameter letters without a value (flags such as "G28 D") are recorded as 0.
func (p *Parser) ParseLine(line string) (*standalone.GCodeCommand, error) {
	i := skipSpace(line, 0)
	if i >= len(line) {
		return nil, nil
	}

	cmd := &standalone.GCodeCommand{
		Parameters: make(map[byte]float64),
	}

	// Check for comment
	if isCommentStart(line[i]) {
		cmd.Comment = line[i:]
		return cmd, nil
	}

	// Parse command type (G, M, T)
	switch letter := toUpper(line[i]); letter {
	case 'G', 'M', 'T':
		cmd.Type = letter
	default:
		return nil, ErrMissingCommand
	}
	i++

	end := scanNumber(line, i, false)
	if end == i {
		return nil, ErrBadNumber
	}
	num, err := strconv.Atoi(line[i:end])
	if err != nil {
		return nil, ErrBadNumber
	}
	cmd.Number = num
	i = end

	// Parse parameters
	for {
		i = skipSpace(line, i)
		if i >= len(line) {
			break
		}

		if isCommentStart(line[i]) {
			cmd.Comment = line[i:]
			break
		}

		if !isLetter(line[i]) {
			return nil, ErrBadNumber
		}
		letter := toUpper(line[i])
		i++

		end := scanNumber(line, i, true)
		if end == i {
			cmd.Parameters[letter] = 0
			continue
		}
		value, err := strconv.ParseFloat(line[i:end], 64)
		if err != nil {
			return nil, ErrBadNumber
		}
		cmd.Parameters[letter] = value
		i = end
	}

	return cmd, nil
}

// scanNumber returns the end of the number starting at pos
func scanNumber(s string, pos int, allowFraction bool) int {
	i := pos
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := 0
	for i < len(s) && (isDigit(s[i]) || (allowFraction && s[i] == '.')) {
		if isDigit(s[i]) {
			digits++
		}
		i++
	}
	if digits == 0 {
		return pos
	}
	return i
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func isCommentStart(c byte) bool {
	return c == ';' || c == '('
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isLetter checks if a byte is a letter
func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// toUpper converts a byte to uppercase
func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
