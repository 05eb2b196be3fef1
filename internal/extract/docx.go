package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// Fallback location of the document body when [Content_Types].xml
	// does not declare one.
	defaultDocumentPart = "word/document.xml"

	contentTypesPart = "[Content_Types].xml"

	wordprocessingMainType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// Text nodes inside runs: <w:t>...</w:t>, with or without attributes.
var docxTextNode = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// Override entries in [Content_Types].xml; attribute order varies between
// producers, so both arrangements are matched.
var (
	overridePartFirst = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(wordprocessingMainType) + `"`)
	overrideTypeFirst = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(wordprocessingMainType) + `"[^>]+PartName="([^"]+)"`)
)

// extractDOCX reads the main document part of an OOXML package and joins
// its text nodes. Matching on <w:t> nodes rather than paragraphs keeps the
// extraction independent of run and paragraph attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	part := mainDocumentPart(zr)
	if part == "" {
		part = defaultDocumentPart
	}
	body, err := readZipPart(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	nodes := docxTextNode.FindAllSubmatch(body, -1)
	texts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		texts = append(texts, strings.TrimSpace(string(node[1])))
	}
	return strings.TrimSpace(strings.Join(texts, " ")), nil
}

// mainDocumentPart resolves the document body's part name from
// [Content_Types].xml, or "" when it cannot be determined.
func mainDocumentPart(zr *zip.Reader) string {
	types, err := readZipPart(zr, contentTypesPart)
	if err != nil {
		return ""
	}
	if m := overridePartFirst.FindSubmatch(types); m != nil {
		return strings.TrimPrefix(string(m[1]), "/")
	}
	if m := overrideTypeFirst.FindSubmatch(types); m != nil {
		return strings.TrimPrefix(string(m[1]), "/")
	}
	return ""
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
