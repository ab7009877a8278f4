// Package adf reads and writes the alpha decomposition format, a line
// oriented text document carrying a claimed cardinality and the sets of a
// decomposition:
//
//	c optional comment
//	p alpha <n> <k>
//	s 1 <b> ... 0
//	...
//	s <k> <b> ... 0
package adf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
)

const (
	formatName = "alpha"
	terminator = "0"
)

// FormatError describes a syntactic or structural problem with a
// document. Line is 1-based; zero means the problem is not tied to a line.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return "malformed document: " + e.Reason
	}
	return fmt.Sprintf("malformed document: line %d: %s", e.Line, e.Reason)
}

func formatErrorf(line int, format string, args ...interface{}) *FormatError {
	return &FormatError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// Document is a parsed or to-be-written decomposition document.
type Document struct {
	N        int
	K        int
	Comments []string
	Sets     []decomposition.Set
}

// NewDocument wraps a decomposition claimed to represent n.
func NewDocument(n int, d decomposition.Decomposition, comments ...string) (*Document, error) {
	doc := &Document{
		N:        n,
		K:        d.K(),
		Comments: comments,
		Sets:     d.Normalize(),
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decomposition returns the sets of the document.
func (d *Document) Decomposition() decomposition.Decomposition {
	return decomposition.Decomposition(d.Sets)
}

// Validate checks the structural rules a document must satisfy before it
// is written.
func (d *Document) Validate() error {
	if d.N < 1 {
		return formatErrorf(0, "n must be positive, got %d", d.N)
	}
	if d.K < 1 {
		return formatErrorf(0, "k must be positive, got %d", d.K)
	}
	if len(d.Sets) != d.K {
		return formatErrorf(0, "header declares %d sets, found %d", d.K, len(d.Sets))
	}
	for i, s := range d.Sets {
		if len(s) == 0 {
			return formatErrorf(0, "set %d is empty", i+1)
		}
	}
	if err := d.Decomposition().Validate(); err != nil {
		return &FormatError{Reason: err.Error()}
	}
	for _, c := range d.Comments {
		if strings.ContainsAny(c, "\r\n") {
			return formatErrorf(0, "comment %q spans lines", c)
		}
	}
	return nil
}

// WriteTo serializes the document, sorting the positions of every set.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	for _, c := range d.Comments {
		if c == "" {
			buf.WriteString("c\n")
			continue
		}
		fmt.Fprintf(&buf, "c %s\n", c)
	}
	fmt.Fprintf(&buf, "p %s %d %d\n", formatName, d.N, d.K)
	for i, s := range d.Sets {
		fmt.Fprintf(&buf, "s %d", i+1)
		for _, b := range s.Normalize() {
			fmt.Fprintf(&buf, " %d", b)
		}
		buf.WriteString(" " + terminator + "\n")
	}
	return buf.WriteTo(w)
}

// Marshal returns the serialized document.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a serialized document.
func Unmarshal(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// ParseFile parses the document stored at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a document. Any violation of the format is reported as a
// *FormatError; read failures are returned as-is.
func Parse(r io.Reader) (*Document, error) {
	var doc *Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	var comments []string
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text[0] == 'c' {
			comments = append(comments, strings.TrimSpace(text[1:]))
			continue
		}

		fields := strings.Fields(text)
		switch fields[0] {
		case "p":
			if doc != nil {
				return nil, formatErrorf(line, "duplicate header")
			}
			header, err := parseHeader(line, fields)
			if err != nil {
				return nil, err
			}
			doc = header
		case "s":
			if doc == nil {
				return nil, formatErrorf(line, "set line before header")
			}
			set, err := parseSet(line, fields, len(doc.Sets)+1, doc.K)
			if err != nil {
				return nil, err
			}
			doc.Sets = append(doc.Sets, set)
		default:
			return nil, formatErrorf(line, "unknown line type %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading document")
	}

	if doc == nil {
		return nil, formatErrorf(0, "missing header")
	}
	if len(doc.Sets) != doc.K {
		return nil, formatErrorf(0, "header declares %d sets, found %d", doc.K, len(doc.Sets))
	}
	doc.Comments = comments
	return doc, nil
}

func parseHeader(line int, fields []string) (*Document, error) {
	if len(fields) != 4 {
		return nil, formatErrorf(line, "header must be \"p %s <n> <k>\"", formatName)
	}
	if fields[1] != formatName {
		return nil, formatErrorf(line, "unknown format %q", fields[1])
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 1 {
		return nil, formatErrorf(line, "n must be a positive integer, got %q", fields[2])
	}
	k, err := strconv.Atoi(fields[3])
	if err != nil || k < 1 {
		return nil, formatErrorf(line, "k must be a positive integer, got %q", fields[3])
	}
	return &Document{N: n, K: k}, nil
}

func parseSet(line int, fields []string, want, k int) (decomposition.Set, error) {
	if len(fields) < 2 {
		return nil, formatErrorf(line, "set line has no index")
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, formatErrorf(line, "set index %q is not an integer", fields[1])
	}
	if index > k {
		return nil, formatErrorf(line, "set index %d exceeds the declared %d sets", index, k)
	}
	if index != want {
		return nil, formatErrorf(line, "set index %d out of order, expected %d", index, want)
	}
	if len(fields) < 3 || fields[len(fields)-1] != terminator {
		return nil, formatErrorf(line, "set line must end with %s", terminator)
	}

	elements := fields[2 : len(fields)-1]
	if len(elements) == 0 {
		return nil, formatErrorf(line, "set %d is empty", index)
	}
	set := make(decomposition.Set, 0, len(elements))
	seen := make(map[int]struct{}, len(elements))
	for _, tok := range elements {
		b, err := strconv.Atoi(tok)
		if err != nil || b < 0 {
			return nil, formatErrorf(line, "bit position %q is not a non-negative integer", tok)
		}
		if _, ok := seen[b]; ok {
			return nil, formatErrorf(line, "bit position %d repeated in set %d", b, index)
		}
		seen[b] = struct{}{}
		set = append(set, b)
	}
	return set, nil
}
