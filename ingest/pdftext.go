package ingest

import (
	"strings"
)

// decodeContentText walks a decoded PDF content stream and collects the
// string operands of the text-showing operators Tj, ', " and TJ. Text
// positioning operators Td, TD, T* and block ends become newlines so
// lines do not run together. Glyph mapping through font CMaps is not
// attempted; simple (byte encoded) fonts produce readable output and
// anything else degrades to garbage that the chunker's trimming drops.
func decodeContentText(content []byte) string {
	var out strings.Builder
	var pending []string

	flush := func() {
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
	}

	i := 0
	n := len(content)
	for i < n {
		c := content[i]

		switch {
		case c == '(':
			s, next := readLiteralString(content, i)
			pending = append(pending, s)
			i = next

		case c == '<' && i+1 < n && content[i+1] != '<':
			s, next := readHexString(content, i)
			pending = append(pending, s)
			i = next

		case c == '%':
			for i < n && content[i] != '\n' && content[i] != '\r' {
				i++
			}

		case isOperatorChar(c):
			start := i
			for i < n && isOperatorChar(content[i]) {
				i++
			}
			op := string(content[start:i])
			switch op {
			case "Tj", "TJ":
				flush()
			case "'", "\"":
				out.WriteByte('\n')
				flush()
			case "Td", "TD", "T*", "ET":
				pending = pending[:0]
				out.WriteByte('\n')
			default:
				// Operand strings consumed by a non-text operator are
				// not page text.
				pending = pending[:0]
			}

		default:
			i++
		}
	}

	return out.String()
}

func isOperatorChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '*' || c == '\'' || c == '"'
}

// readLiteralString parses a PDF literal string starting at the opening
// parenthesis. Balanced unescaped parentheses nest.
func readLiteralString(content []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return b.String(), i + 1
			}
			next := content[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '(', ')', '\\':
				b.WriteByte(next)
			default:
				if next >= '0' && next <= '7' {
					val, consumed := readOctal(content, i+1)
					b.WriteByte(val)
					i += consumed - 1
				}
			}
			i += 2
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

func readOctal(content []byte, start int) (byte, int) {
	val := 0
	i := start
	for i < len(content) && i < start+3 && content[i] >= '0' && content[i] <= '7' {
		val = val*8 + int(content[i]-'0')
		i++
	}
	return byte(val), i - start
}

// readHexString parses a PDF hex string starting at '<'. An odd final
// digit is padded with zero per the PDF spec.
func readHexString(content []byte, start int) (string, int) {
	var digits []byte
	i := start + 1
	for i < len(content) && content[i] != '>' {
		c := content[i]
		if isHexDigit(c) {
			digits = append(digits, c)
		}
		i++
	}
	if i < len(content) {
		i++ // consume '>'
	}

	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	var b strings.Builder
	for j := 0; j+1 < len(digits); j += 2 {
		b.WriteByte(hexVal(digits[j])<<4 | hexVal(digits[j+1]))
	}
	return b.String(), i
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
