package gcode

import (
	"testing"
)

func TestParseBasicCommands(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		input   string
		cmdType byte
		cmdNum  int
		params  map[byte]float64
	}{
		{
			input:   "G1 X200",
			cmdType: 'G',
			cmdNum:  1,
			params:  map[byte]float64{'X': 200},
		},
		{
			input:   "M3 S120.5",
			cmdType: 'M',
			cmdNum:  3,
			params:  map[byte]float64{'S': 120.5},
		},
		{
			input:   "G28",
			cmdType: 'G',
			cmdNum:  28,
			params:  map[byte]float64{},
		},
		{
			input:   "G28 S-30 D1",
			cmdType: 'G',
			cmdNum:  28,
			params:  map[byte]float64{'S': -30, 'D': 1},
		},
		{
			input:   "M350 S16",
			cmdType: 'M',
			cmdNum:  350,
			params:  map[byte]float64{'S': 16},
		},
	}

	for _, test := range tests {
		cmd, err := parser.ParseLine(test.input)
		if err != nil {
			t.Errorf("Failed to parse '%s': %v", test.input, err)
			continue
		}

		if cmd == nil {
			t.Errorf("Got nil command for '%s'", test.input)
			continue
		}

		if cmd.Type != test.cmdType {
			t.Errorf("Expected type %c, got %c for '%s'", test.cmdType, cmd.Type, test.input)
		}

		if cmd.Number != test.cmdNum {
			t.Errorf("Expected number %d, got %d for '%s'", test.cmdNum, cmd.Number, test.input)
		}

		for param, value := range test.params {
			if !cmd.HasParameter(param) {
				t.Errorf("Missing parameter %c in '%s'", param, test.input)
			} else if cmd.GetParameter(param, 0) != value {
				t.Errorf("Expected %c=%f, got %c=%f in '%s'",
					param, value, param, cmd.GetParameter(param, 0), test.input)
			}
		}
	}
}

func TestParseNegativeNumbers(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("G1 X-10.5 Y-20")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if cmd.GetParameter('X', 0) != -10.5 {
		t.Errorf("Expected X=-10.5, got X=%f", cmd.GetParameter('X', 0))
	}

	if cmd.GetParameter('Y', 0) != -20 {
		t.Errorf("Expected Y=-20, got Y=%f", cmd.GetParameter('Y', 0))
	}
}

func TestParseComments(t *testing.T) {
	parser := NewParser()

	tests := []string{
		"; This is a comment",
		"G1 X10 ; Move 10 steps",
		"(This is a comment)",
	}

	for _, test := range tests {
		cmd, err := parser.ParseLine(test)
		if err != nil {
			t.Errorf("Failed to parse '%s': %v", test, err)
		}

		if cmd == nil {
			t.Errorf("Got nil command for '%s'", test)
		}
	}
}

func TestParseLowercase(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("g1 x10 y20")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if cmd.Type != 'G' {
		t.Errorf("Expected type G, got %c", cmd.Type)
	}

	if cmd.Number != 1 {
		t.Errorf("Expected number 1, got %d", cmd.Number)
	}

	if cmd.GetParameter('X', 0) != 10 {
		t.Errorf("Expected X=10, got X=%f", cmd.GetParameter('X', 0))
	}
}

func TestParseEmptyLine(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("")
	if err != nil {
		t.Errorf("Empty line should not error: %v", err)
	}

	if cmd != nil {
		t.Errorf("Empty line should return nil command")
	}
}

func TestParseFlagParameter(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("M569 S")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if !cmd.HasParameter('S') || cmd.GetParameter('S', 1) != 0 {
		t.Errorf("Expected flag S recorded as 0")
	}
}

func TestParseCommentOnly(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("; homing next")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if !cmd.IsEmpty() || cmd.Comment != "; homing next" {
		t.Errorf("Expected empty command with comment, got %+v", cmd)
	}
}

func TestParseErrors(t *testing.T) {
	parser := NewParser()

	tests := []string{
		"X10",
		"G",
		"G1 X1.2.3",
		"G1 #5",
	}

	for _, test := range tests {
		if _, err := parser.ParseLine(test); err == nil {
			t.Errorf("Expected error for '%s'", test)
		}
	}
}
