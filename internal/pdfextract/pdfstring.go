package pdfextract

import (
	"encoding/hex"
	"strings"
	"unicode/utf16"
)

// literalBody matches the inside of a literal string: escapes, plain bytes
// and one level of balanced unescaped parentheses.
const literalBody = `(?:\\.|[^\\()]|\((?:\\.|[^\\()])*\))*`

// unescapeLiteral decodes the body of a PDF literal string (the bytes
// between the parentheses). Bytes above 0x7F are read as Latin-1.
func unescapeLiteral(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteRune(rune(c))
			continue
		}
		if i+1 >= len(raw) {
			break
		}
		i++
		switch e := raw[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '(', ')', '\\':
			b.WriteByte(e)
		case '\r':
			// line continuation, CRLF counts as one end-of-line
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if e >= '0' && e <= '7' {
				v := int(e - '0')
				for n := 1; n < 3 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					v = v*8 + int(raw[i]-'0')
				}
				b.WriteRune(rune(v & 0xFF))
				continue
			}
			b.WriteRune(rune(e))
		}
	}
	return b.String()
}

// decodeHex decodes a PDF hex string. A UTF-16BE byte order mark selects
// UTF-16 decoding, anything else is Latin-1.
func decodeHex(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return r
		}
		return -1
	}, raw)
	if len(digits)%2 == 1 {
		digits += "0"
	}
	data, err := hex.DecodeString(digits)
	if err != nil {
		return ""
	}

	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		data = data[2:]
		units := make([]uint16, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			units = append(units, uint16(data[i])<<8|uint16(data[i+1]))
		}
		return string(utf16.Decode(units))
	}

	runes := make([]rune, len(data))
	for i, c := range data {
		runes[i] = rune(c)
	}
	return string(runes)
}
