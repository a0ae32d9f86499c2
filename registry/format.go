package registry

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// priorityPattern matches a whole (trimmed) priority marker line.
var priorityPattern = regexp.MustCompile(`^# priority (-?\d+)$`)

// maxLineLength bounds a single registry line.
const maxLineLength = 1024 * 1024

// Parse decodes a registry file. A "# priority N" line sets the priority
// of every following entry until the next marker; the priority starts at 0.
// Text from the first '#' to the end of a line is a comment. Blank lines
// are ignored, and an entry repeated later in the file takes the later
// priority.
func Parse(r io.Reader) (Registrations, error) {
	regs := make(Registrations)
	current := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := trim(scanner.Text())

		// The marker must be matched before comments are stripped, since
		// stripping would reduce it to nothing.
		if m := priorityPattern.FindStringSubmatch(line); m != nil {
			p, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid priority %q: %w", lineNo, m[1], err)
			}
			current = p
		}

		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = trim(line[:idx])
		}
		if line == "" {
			continue
		}

		regs.Add(line, current)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", lineNo+1, err)
	}

	return regs, nil
}

// trim removes leading and trailing ASCII control characters and spaces.
// Other Unicode whitespace, such as U+00A0, is part of the entry.
func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
}

// Encode writes registrations in Compare order. A priority marker precedes
// the first entry of every run whose priority differs from the one before
// it; the running priority starts at 0 to match Parse, so a file where
// everything has priority 0 carries no markers at all.
func Encode(w io.Writer, regs Registrations) error {
	bw := bufio.NewWriter(w)
	current := 0
	for _, reg := range Sorted(regs) {
		if reg.Priority != current {
			current = reg.Priority
			if _, err := fmt.Fprintf(bw, "# priority %d\n", current); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(reg.Name + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// EncodeString returns the encoded form of regs.
func EncodeString(regs Registrations) string {
	var sb strings.Builder
	// strings.Builder never fails to write.
	_ = Encode(&sb, regs)
	return sb.String()
}
