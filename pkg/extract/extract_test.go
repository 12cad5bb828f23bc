package extract

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

func TestTextPlain(t *testing.T) {
	text, err := Text([]byte("first line\r\n\r\n  second line  \n"), "TXT")
	require.NoError(t, err)
	require.Equal(t, "first line\n  second line", text)

	text, err = Text([]byte{'o', 'k', 0xff}, "txt")
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}

func TestTextDocx(t *testing.T) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	writer, err := archive.Create("word/document.xml")
	require.NoError(t, err)
	_, err = writer.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Photosynthesis converts</w:t></w:r><w:r><w:t xml:space="preserve"> light energy</w:t></w:r></w:p>
    <w:p><w:r><w:t>into chemical energy.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	text, err := Text(buf.Bytes(), "docx")
	require.NoError(t, err)
	require.Equal(t, "Photosynthesis converts light energy\ninto chemical energy.", text)
}

func TestTextDocxWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	_, err := archive.Create("docProps/app.xml")
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	_, err = Text(buf.Bytes(), "docx")
	require.Error(t, err)
}

func TestTextDocxRejectsExpansionPastLimit(t *testing.T) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	writer, err := archive.Create("word/document.xml")
	require.NoError(t, err)
	_, err = io.WriteString(writer, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>`)
	require.NoError(t, err)
	chunk := bytes.Repeat([]byte("a"), 1<<20)
	for i := int64(0); i < maxDocumentXML>>20+8; i++ {
		_, err = writer.Write(chunk)
		require.NoError(t, err)
	}
	_, err = io.WriteString(writer, `</w:t></w:r></w:p></w:body></w:document>`)
	require.NoError(t, err)
	require.NoError(t, archive.Close())
	require.Less(t, buf.Len(), 1<<20)

	text, err := Text(buf.Bytes(), "docx")
	require.ErrorIs(t, err, ErrTooLarge)
	require.Empty(t, text)
}

func TestCappedReaderStopsAtLimit(t *testing.T) {
	_, err := io.ReadAll(&cappedReader{r: strings.NewReader("0123456789"), remaining: 4})
	require.ErrorIs(t, err, ErrTooLarge)

	data, err := io.ReadAll(&cappedReader{r: strings.NewReader("0123456789"), remaining: 10})
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(data))
}

func TestTextDocKeepsPrintableRuns(t *testing.T) {
	payload := append([]byte{0xd0, 0xcf, 0x11, 0xe0, 0x00}, []byte("Essay about rivers")...)
	payload = append(payload, 0x00, 'a', 'b', 0x01)

	text, err := Text(payload, "doc")
	require.NoError(t, err)
	require.Equal(t, "Essay about rivers", text)
}

func TestTextPDF(t *testing.T) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Cell(0, 10, "Rivers shape valleys")

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))

	text, err := Text(buf.Bytes(), "pdf")
	require.NoError(t, err)
	require.Contains(t, text, "Rivers shape valleys")
}

func TestTextRejectsImagesAndGarbage(t *testing.T) {
	_, err := Text([]byte{0x89, 'P', 'N', 'G'}, "png")
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Text([]byte("not a pdf"), "pdf")
	require.Error(t, err)
}
