package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Frame encodes a verb and its arguments as a newline-terminated record.
func Frame(verb string, args ...string) string {
	if len(args) == 0 {
		return verb + "\n"
	}
	return verb + FieldSep + strings.Join(args, FieldSep) + "\n"
}

// ParseFrame splits a record into verb and arguments. The trailing
// newline, if present, is stripped. An empty line yields an empty verb.
func ParseFrame(line string) (verb string, args []string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", nil
	}
	fields := strings.Split(line, FieldSep)
	return fields[0], fields[1:]
}

// ReadFrame reads one record from r and parses it.
func ReadFrame(r *bufio.Reader) (verb string, args []string, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			// Final record without trailing newline is still a frame.
			verb, args = ParseFrame(line)
			return verb, args, nil
		}
		return "", nil, err
	}
	verb, args = ParseFrame(line)
	return verb, args, nil
}

// ReadUntilMarker consumes lines from r until a line equal to marker
// arrives, and returns the payload with the marker stripped. The payload
// keeps interior newlines; the newline immediately before the marker is
// dropped.
func ReadUntilMarker(r *bufio.Reader, marker string) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == marker {
			return strings.TrimSuffix(b.String(), "\n"), nil
		}
		if line != "" {
			b.WriteString(line)
		}
		if err != nil {
			if err == io.EOF {
				return b.String(), fmt.Errorf("stream ended before %s marker", marker)
			}
			return b.String(), err
		}
	}
}

// WriteFrame writes one encoded record to w.
func WriteFrame(w io.Writer, verb string, args ...string) error {
	_, err := io.WriteString(w, Frame(verb, args...))
	return err
}

// WritePayload writes a free-text payload followed by the given marker.
// A newline is inserted between payload and marker unless the payload is
// empty or already newline-terminated.
func WritePayload(w io.Writer, payload, marker string) error {
	var b strings.Builder
	if payload != "" {
		b.WriteString(payload)
		if !strings.HasSuffix(payload, "\n") {
			b.WriteByte('\n')
		}
	}
	b.WriteString(marker)
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// ValidateName rejects names that cannot travel inside a frame or that
// would escape a storage root: empty names, the field delimiter, CR/LF,
// backslashes, and `..`. A single forward slash is allowed so files can
// live inside one folder level ("docs/notes.txt"); both segments must be
// non-empty.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case strings.Contains(name, FieldSep):
		return fmt.Errorf("name %q contains %q", name, FieldSep)
	case strings.ContainsAny(name, "\r\n"):
		return fmt.Errorf("name %q contains a line break", name)
	case strings.Contains(name, `\`):
		return fmt.Errorf("name %q contains a backslash", name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("name %q contains '..'", name)
	}
	if strings.Count(name, "/") > 1 {
		return fmt.Errorf("name %q nests deeper than one folder", name)
	}
	if dir, rest, found := strings.Cut(name, "/"); found && (dir == "" || rest == "") {
		return fmt.Errorf("name %q has an empty path segment", name)
	}
	return nil
}

// ValidateTag applies the name rules to a checkpoint tag, which is a
// single path segment: no slashes at all.
func ValidateTag(tag string) error {
	if err := ValidateName(tag); err != nil {
		return err
	}
	if strings.Contains(tag, "/") {
		return fmt.Errorf("tag %q contains a slash", tag)
	}
	return nil
}
