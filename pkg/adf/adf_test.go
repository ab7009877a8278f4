package adf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
)

func TestParse(t *testing.T) {
	type tc struct {
		Name     string
		Input    string
		Document *Document
		Error    error
	}

	for _, tt := range []tc{
		{
			Name:  "twelve with comments",
			Input: "c witness for 12\nc\np alpha 12 2\ns 1 0 2 3 0\ns 2 1 2 3 0\n",
			Document: &Document{
				N:        12,
				K:        2,
				Comments: []string{"witness for 12", ""},
				Sets:     []decomposition.Set{{0, 2, 3}, {1, 2, 3}},
			},
		},
		{
			Name:  "blank lines and surrounding space",
			Input: "\n  p alpha 13 3  \n\ns 1 0 1 5 0\ns 2 2 3 0\n\t s 3 4 5 0\n",
			Document: &Document{
				N:    13,
				K:    3,
				Sets: []decomposition.Set{{0, 1, 5}, {2, 3}, {4, 5}},
			},
		},
		{
			Name:  "zero is a position before the terminator",
			Input: "p alpha 2 1\ns 1 0 0\n",
			Document: &Document{
				N:    2,
				K:    1,
				Sets: []decomposition.Set{{0}},
			},
		},
		{
			Name:  "zero cardinality",
			Input: "p alpha 0 2\n",
			Error: &FormatError{Line: 1, Reason: `n must be a positive integer, got "0"`},
		},
		{
			Name:  "zero sets",
			Input: "p alpha 4 0\n",
			Error: &FormatError{Line: 1, Reason: `k must be a positive integer, got "0"`},
		},
		{
			Name:  "short header",
			Input: "p alpha 4\n",
			Error: &FormatError{Line: 1, Reason: `header must be "p alpha <n> <k>"`},
		},
		{
			Name:  "wrong format name",
			Input: "p cnf 4 1\n",
			Error: &FormatError{Line: 1, Reason: `unknown format "cnf"`},
		},
		{
			Name:  "duplicate header",
			Input: "p alpha 4 1\np alpha 4 1\n",
			Error: &FormatError{Line: 2, Reason: "duplicate header"},
		},
		{
			Name:  "missing header",
			Input: "c nothing here\n",
			Error: &FormatError{Reason: "missing header"},
		},
		{
			Name:  "set before header",
			Input: "s 1 0 0\np alpha 2 1\n",
			Error: &FormatError{Line: 1, Reason: "set line before header"},
		},
		{
			Name:  "missing terminator",
			Input: "p alpha 2 1\ns 1 3\n",
			Error: &FormatError{Line: 2, Reason: "set line must end with 0"},
		},
		{
			Name:  "empty set",
			Input: "p alpha 1 1\ns 1 0\n",
			Error: &FormatError{Line: 2, Reason: "set 1 is empty"},
		},
		{
			Name:  "negative position",
			Input: "p alpha 2 1\ns 1 -1 0\n",
			Error: &FormatError{Line: 2, Reason: `bit position "-1" is not a non-negative integer`},
		},
		{
			Name:  "garbage position",
			Input: "p alpha 2 1\ns 1 x 0\n",
			Error: &FormatError{Line: 2, Reason: `bit position "x" is not a non-negative integer`},
		},
		{
			Name:  "repeated position",
			Input: "p alpha 2 1\ns 1 4 4 0\n",
			Error: &FormatError{Line: 2, Reason: "bit position 4 repeated in set 1"},
		},
		{
			Name:  "skipped index",
			Input: "p alpha 12 2\ns 2 1 2 3 0\n",
			Error: &FormatError{Line: 2, Reason: "set index 2 out of order, expected 1"},
		},
		{
			Name:  "duplicate index",
			Input: "p alpha 12 2\ns 1 1 2 3 0\ns 1 0 2 3 0\n",
			Error: &FormatError{Line: 3, Reason: "set index 1 out of order, expected 2"},
		},
		{
			Name:  "too many sets",
			Input: "p alpha 2 1\ns 1 0 0\ns 2 1 0\n",
			Error: &FormatError{Line: 3, Reason: "set index 2 exceeds the declared 1 sets"},
		},
		{
			Name:  "too few sets",
			Input: "p alpha 12 2\ns 1 0 2 3 0\n",
			Error: &FormatError{Reason: "header declares 2 sets, found 1"},
		},
		{
			Name:  "unknown line",
			Input: "p alpha 2 1\nx 1\n",
			Error: &FormatError{Line: 2, Reason: `unknown line type "x"`},
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.Input))
			assert.Equal(t, tt.Error, err)
			assert.Equal(t, tt.Document, doc)
		})
	}
}

func TestWriteTo(t *testing.T) {
	doc, err := NewDocument(12, decomposition.Decomposition{{3, 2, 0}, {1, 2, 3}}, "found by level search")
	require.NoError(t, err)

	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "c found by level search\np alpha 12 2\ns 1 0 2 3 0\ns 2 1 2 3 0\n", string(data))

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc, parsed)
}

func TestNewDocumentRejectsEmptySets(t *testing.T) {
	_, err := NewDocument(1, decomposition.Decomposition{{}})
	assert.Equal(t, &FormatError{Reason: "set 1 is empty"}, err)
}

func TestWriteToRejectsInvalidDocuments(t *testing.T) {
	var buf bytes.Buffer
	_, err := (&Document{N: 4, K: 2, Sets: []decomposition.Set{{0, 1}}}).WriteTo(&buf)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())

	_, err = (&Document{N: 4, K: 1, Sets: []decomposition.Set{{1, 1}}}).WriteTo(&buf)
	assert.Error(t, err)

	_, err = (&Document{N: 4, K: 1, Comments: []string{"a\nb"}, Sets: []decomposition.Set{{0, 1}}}).WriteTo(&buf)
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.adf")
	require.NoError(t, os.WriteFile(path, []byte("p alpha 12 2\ns 1 0 2 3 0\ns 2 1 2 3 0\n"), 0o600))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12, doc.N)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.adf"))
	assert.Error(t, err)
}
