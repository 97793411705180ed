package loader

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/plain", ContentTypeFor(".txt"))
	assert.Equal(t, "text/markdown", ContentTypeFor(".md"))
	assert.Equal(t, "text/markdown", ContentTypeFor(".markdown"))
	assert.Equal(t, "application/pdf", ContentTypeFor(".pdf"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ContentTypeFor(".docx"))
	assert.Equal(t, "", ContentTypeFor(".odt"))
	assert.Equal(t, "", ContentTypeFor(""))
}

// buildDOCX assembles a minimal DOCX container holding the given
// word/document.xml body.
func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	t.Run("plain text passes through", func(t *testing.T) {
		text, err := Extract(domain.Document{Name: "a.txt", ContentType: "text/plain", Data: []byte("hello")})
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
	})

	t.Run("markdown passes through", func(t *testing.T) {
		text, err := Extract(domain.Document{Name: "a.md", ContentType: "text/markdown", Data: []byte("# Title")})
		require.NoError(t, err)
		assert.Equal(t, "# Title", text)
	})

	t.Run("unsupported content type is invalid", func(t *testing.T) {
		_, err := Extract(domain.Document{Name: "a.doc", ContentType: "application/msword", Data: []byte("x")})
		require.Error(t, err)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("malformed pdf is an error", func(t *testing.T) {
		_, err := Extract(domain.Document{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("not a pdf")})
		assert.Error(t, err)
	})

	t.Run("docx paragraphs join with blank lines", func(t *testing.T) {
		body := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second </t></r><r><t>paragraph.</t></r></p>
    <p><r><t>   </t></r></p>
  </body>
</document>`
		data := buildDOCX(t, body)
		text, err := Extract(domain.Document{Name: "a.docx", ContentType: ContentTypeFor(".docx"), Data: data})
		require.NoError(t, err)
		assert.Equal(t, "First paragraph.\n\nSecond paragraph.", text)
	})

	t.Run("malformed docx is an error", func(t *testing.T) {
		_, err := Extract(domain.Document{Name: "a.docx", ContentType: ContentTypeFor(".docx"), Data: []byte("not a zip")})
		assert.Error(t, err)
	})

	t.Run("docx without a document body is an error", func(t *testing.T) {
		var buf bytes.Buffer
		w := zip.NewWriter(&buf)
		_, err := w.Create("word/other.xml")
		require.NoError(t, err)
		require.NoError(t, w.Close())
		_, err = Extract(domain.Document{Name: "a.docx", ContentType: ContentTypeFor(".docx"), Data: buf.Bytes()})
		assert.Error(t, err)
	})
}
