// Package extract pulls plain text out of submission documents.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupported is returned for formats that carry no extractable text.
	ErrUnsupported = errors.New("format has no extractable text")
	// ErrTooLarge is returned when a compressed part expands past the
	// extraction ceiling.
	ErrTooLarge = errors.New("document expands beyond extraction limit")
)

const minDocRun = 4

// maxDocumentXML caps the decompressed size of word/document.xml, twice the
// default upload ceiling.
var maxDocumentXML int64 = 32 << 20

// Text returns the text content of payload according to its extension
// (lower case, without the dot). Images and unknown formats yield ErrUnsupported.
func Text(payload []byte, ext string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "txt":
		return normalize(toValidUTF8(payload)), nil
	case "pdf":
		return pdfText(payload)
	case "docx":
		return docxText(payload)
	case "doc":
		return docText(payload), nil
	default:
		return "", ErrUnsupported
	}
}

func pdfText(payload []byte) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("parse pdf: %v", recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalize(buf.String()), nil
}

func docxText(payload []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		if file.UncompressedSize64 > uint64(maxDocumentXML) {
			return "", fmt.Errorf("open document.xml: %w", ErrTooLarge)
		}
		handle, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer handle.Close()
		return wordprocessingText(&cappedReader{r: handle, remaining: maxDocumentXML})
	}

	return "", fmt.Errorf("open docx: word/document.xml missing")
}

func wordprocessingText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var out strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}

	return normalize(out.String()), nil
}

// cappedReader fails with ErrTooLarge instead of reading past remaining bytes.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		var probe [1]byte
		if n, _ := c.r.Read(probe[:]); n > 0 {
			return 0, ErrTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}

// docText keeps printable runs from legacy binary documents.
func docText(payload []byte) string {
	var out, run strings.Builder
	flush := func() {
		if run.Len() >= minDocRun {
			out.WriteString(run.String())
			out.WriteByte('\n')
		}
		run.Reset()
	}

	for _, b := range payload {
		if b == '\t' || (b >= 0x20 && b < 0x7f) {
			run.WriteByte(b)
			continue
		}
		flush()
	}
	flush()

	return normalize(out.String())
}

func toValidUTF8(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	return strings.ToValidUTF8(string(payload), "")
}

func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
