// Package loader extracts plain text from raw documents.
package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragpipe/internal/domain"
)

// ContentTypeFor maps a file extension (with leading dot, lower case) to
// the content type used throughout the pipeline. Unsupported extensions
// return the empty string.
func ContentTypeFor(ext string) string {
	switch ext {
	case ".txt":
		return "text/plain"
	case ".md", ".markdown":
		return "text/markdown"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return ""
	}
}

// Extract returns the plain text of a raw document. Plain text and
// markdown pass through unchanged; PDF pages are concatenated; DOCX
// paragraphs are joined with blank lines so the chunker sees them as
// paragraph boundaries.
func Extract(doc domain.Document) (string, error) {
	switch doc.ContentType {
	case "text/plain", "text/markdown":
		return string(doc.Data), nil
	case "application/pdf":
		return extractPDF(doc)
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDOCX(doc)
	default:
		return "", &domain.ValidationError{Reason: "unsupported content type " + doc.ContentType}
	}
}

func extractPDF(doc domain.Document) (string, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", doc.Name, err)
	}
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", doc.Name, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("read pdf buffer %s: %w", doc.Name, err)
	}
	return buf.String(), nil
}

// docxDocument mirrors the paragraph/run structure of word/document.xml.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

// extractDOCX reads word/document.xml out of the DOCX zip container and
// joins the non-empty paragraphs with blank lines.
func extractDOCX(doc domain.Document) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return "", fmt.Errorf("open docx %s: %w", doc.Name, err)
	}
	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open docx body %s: %w", doc.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read docx body %s: %w", doc.Name, err)
		}
		var parsed docxDocument
		if err := xml.Unmarshal(content, &parsed); err != nil {
			return "", fmt.Errorf("parse docx body %s: %w", doc.Name, err)
		}
		var paras []string
		for _, p := range parsed.Body.Paragraphs {
			var sb strings.Builder
			for _, r := range p.Runs {
				for _, t := range r.Text {
					sb.WriteString(t.Content)
				}
			}
			if s := strings.TrimSpace(sb.String()); s != "" {
				paras = append(paras, s)
			}
		}
		return strings.Join(paras, "\n\n"), nil
	}
	return "", fmt.Errorf("docx %s has no document body", doc.Name)
}
