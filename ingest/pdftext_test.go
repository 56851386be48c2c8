package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeContentTextTj(t *testing.T) {
	content := []byte(`BT /F1 12 Tf 72 720 Td (Hello World) Tj ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "Hello World")
}

func TestDecodeContentTextTJArray(t *testing.T) {
	content := []byte(`BT [(Hel) -20 (lo) 5 ( there)] TJ ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "Hello there")
}

func TestDecodeContentTextNewlines(t *testing.T) {
	content := []byte(`BT (first line) Tj 0 -14 Td (second line) Tj ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "first line")
	assert.Contains(t, got, "second line")
	assert.Less(t,
		strings.Index(got, "first line"), strings.Index(got, "second line"))
}

func TestDecodeContentTextEscapes(t *testing.T) {
	content := []byte(`BT (paren \( and \) backslash \\ octal \101) Tj ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "paren ( and ) backslash \\ octal A")
}

func TestDecodeContentTextNestedParens(t *testing.T) {
	content := []byte(`BT (outer (inner) tail) Tj ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "outer (inner) tail")
}

func TestDecodeContentTextHexString(t *testing.T) {
	// 48656C6C6F = "Hello", odd digit pads with zero.
	content := []byte(`BT <48656C6C6F> Tj ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "Hello")
}

func TestDecodeContentTextIgnoresNonTextOperands(t *testing.T) {
	// String operand consumed by a non-text operator is dropped.
	content := []byte(`/Name (not shown) SomeOp BT (shown) Tj ET`)
	got := decodeContentText(content)
	assert.Contains(t, got, "shown")
	assert.NotContains(t, got, "not shown")
}

func TestDecodeContentTextEmpty(t *testing.T) {
	assert.Equal(t, "", decodeContentText(nil))
}
