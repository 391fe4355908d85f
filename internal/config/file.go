package config

import (
	"fmt"
	"os"
	"strings"
)

type entry struct {
	key   string
	value string
	line  int
}

// ParseError points at the offending line of a config file.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error on line %d: %s", e.File, e.Line, e.Msg)
}

func readFile(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: parse failed: %w", path, err)
	}
	return parse(path, string(data))
}

// parse reads "key = value" lines. Blank lines and lines starting with '#'
// are skipped. Values are alphanumeric or double-quoted.
func parse(name, data string) ([]entry, error) {
	var entries []entry
	for i, raw := range strings.Split(data, "\n") {
		lineNo := i + 1
		fail := func(msg string) error {
			return &ParseError{File: name, Line: lineNo, Msg: msg}
		}

		line := strings.TrimLeft(raw, " \t")
		if line == "" || line[0] == '#' {
			continue
		}

		n := span(line, isKeyChar)
		if n == 0 {
			return nil, fail("invalid key")
		}
		key := line[:n]
		line = strings.TrimLeft(line[n:], " \t")

		if !strings.HasPrefix(line, "=") {
			return nil, fail("expected '='")
		}
		line = strings.TrimLeft(line[1:], " \t")

		var value string
		if strings.HasPrefix(line, `"`) {
			end := strings.IndexByte(line[1:], '"')
			if end < 0 {
				return nil, fail("missing closing quote")
			}
			value = line[1 : end+1]
			line = line[end+2:]
		} else {
			n := span(line, isValueChar)
			value = line[:n]
			line = line[n:]
		}
		if value == "" {
			return nil, fail("invalid value")
		}

		if strings.Trim(line, " \t\r") != "" {
			return nil, fail("unexpected data after value")
		}
		entries = append(entries, entry{key: key, value: value, line: lineNo})
	}
	return entries, nil
}

func span(s string, ok func(byte) bool) int {
	n := 0
	for n < len(s) && ok(s[n]) {
		n++
	}
	return n
}

func isValueChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isKeyChar(c byte) bool {
	return isValueChar(c) || c == '-'
}
