// Package pdftest builds small synthetic PDFs for tests.
package pdftest

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Escape escapes text for use inside a PDF literal string
func Escape(text string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(text)
}

// TextPDF builds a one-page PDF that shows each line with Tj
func TextPDF(lines ...string) []byte {
	var content strings.Builder
	content.WriteString("BT\n/F1 12 Tf\n72 720 Td\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("0 -14 Td\n")
		}
		content.WriteString("(" + Escape(line) + ") Tj\n")
	}
	content.WriteString("ET")
	return ContentPDF(content.String(), false)
}

// ContentPDF wraps a raw content stream in a catalog, page tree, page and
// font. With compress set the stream is zlib encoded and declared
// /FlateDecode.
func ContentPDF(content string, compress bool) []byte {
	stream := []byte(content)
	dict := "<< /Length "
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(stream)
		zw.Close()
		stream = buf.Bytes()
		dict = "<< /Filter /FlateDecode /Length "
	}

	var b bytes.Buffer
	offsets := make([]int, 6)
	b.WriteString("%PDF-1.4\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n" + dict + strconv.Itoa(len(stream)) + " >>\nstream\n")
	b.Write(stream)
	b.WriteString("\nendstream\nendobj\n")
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	writeTrailer(&b, offsets)
	return b.Bytes()
}

// ImageOnlyPDF builds a page whose only content is an image XObject
func ImageOnlyPDF() []byte {
	pixels := bytes.Repeat([]byte{0x00, 0xFF, 0x7F}, 64)

	var b bytes.Buffer
	offsets := make([]int, 6)
	b.WriteString("%PDF-1.4\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /XObject << /Im1 5 0 R >> >> >>\nendobj\n")

	draw := "q 200 0 0 200 72 500 cm /Im1 Do Q"
	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n<< /Length " + strconv.Itoa(len(draw)) + " >>\nstream\n" + draw + "\nendstream\nendobj\n")
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length " + strconv.Itoa(len(pixels)) + " >>\nstream\n")
	b.Write(pixels)
	b.WriteString("\nendstream\nendobj\n")

	writeTrailer(&b, offsets)
	return b.Bytes()
}

func writeTrailer(b *bytes.Buffer, offsets []int) {
	xref := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(len(offsets)) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		b.WriteString(padOffset(off) + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(len(offsets)) + " /Root 1 0 R >>\n")
	b.WriteString("startxref\n" + strconv.Itoa(xref) + "\n%%EOF\n")
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	return strings.Repeat("0", 10-len(s)) + s
}
