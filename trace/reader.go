// Package trace reads the ASCII memory-reference trace format spec.md §6
// defines: one `op address_hex` record per line, op in {r, w}.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/cache"
)

// FormatError reports a malformed trace line, carrying the 1-based line
// number so the caller can report it to the user.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("trace format error at line %d: %s", e.Line, e.Reason)
}

// IOError wraps an I/O failure (missing or unreadable trace file) with the
// underlying cause, per spec.md §7.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("trace io error: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Record is one parsed trace line.
type Record struct {
	Op      cache.Op
	Address uint32
}

// Handler is called once per well-formed record, in file order.
type Handler func(Record) error

// Read scans r line by line, skipping blank lines and tolerating trailing
// whitespace, and invokes handle for every well-formed record. It stops and
// returns the first *FormatError encountered, or an *IOError if the
// underlying reader fails.
func Read(r io.Reader, handle Handler) error {
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		record, err := parseLine(text, line)
		if err != nil {
			return err
		}

		if err := handle(record); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return &IOError{Err: err}
	}

	return nil
}

func parseLine(text string, line int) (Record, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Record{}, &FormatError{
			Line:   line,
			Reason: fmt.Sprintf("expected 2 fields (op address), got %d", len(fields)),
		}
	}

	op, err := parseOp(fields[0])
	if err != nil {
		return Record{}, &FormatError{Line: line, Reason: err.Error()}
	}

	address, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
	if err != nil {
		return Record{}, &FormatError{
			Line:   line,
			Reason: fmt.Sprintf("invalid hex address %q: %v", fields[1], err),
		}
	}

	return Record{Op: op, Address: uint32(address)}, nil
}

func parseOp(field string) (cache.Op, error) {
	switch field {
	case "r":
		return cache.Read, nil
	case "w":
		return cache.Write, nil
	default:
		return 0, fmt.Errorf("unknown op %q, expected %q or %q", field, "r", "w")
	}
}
