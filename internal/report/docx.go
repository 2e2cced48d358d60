package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"caravel/internal/validation"
)

// Document carries what the rendered report shows besides the issues.
type Document struct {
	Title string
	// Meta rows are rendered as "key: value" lines under the title.
	Meta [][2]string
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// RenderDOCX writes r as a minimal WordprocessingML package.
func RenderDOCX(w io.Writer, doc Document, r validation.Report) error {
	var body bytes.Buffer
	paragraph(&body, doc.Title, true, 32)
	for _, row := range doc.Meta {
		paragraph(&body, row[0]+": "+row[1], false, 0)
	}
	paragraph(&body, "Outcome: "+outcomeLabel(r), true, 0)

	for _, name := range r.Validators() {
		issues := r.Issues(name)
		paragraph(&body, fmt.Sprintf("%s (%d)", name, len(issues)), true, 26)
		if len(issues) == 0 {
			paragraph(&body, "passed", false, 0)
			continue
		}
		for _, issue := range issues {
			paragraph(&body, "• "+issue, false, 0)
		}
	}

	zw := zip.NewWriter(w)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML(body.String())},
	}
	for _, part := range parts {
		fw, err := zw.Create(part.name)
		if err != nil {
			return fmt.Errorf("docx part %s: %w", part.name, err)
		}
		if _, err := io.WriteString(fw, part.content); err != nil {
			return fmt.Errorf("docx part %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close docx: %w", err)
	}
	return nil
}

func documentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`<w:sectPr/></w:body></w:document>`
}

// paragraph appends one w:p. size is in half-points; 0 keeps the default.
func paragraph(buf *bytes.Buffer, text string, bold bool, size int) {
	buf.WriteString("<w:p><w:r>")
	if bold || size > 0 {
		buf.WriteString("<w:rPr>")
		if bold {
			buf.WriteString("<w:b/>")
		}
		if size > 0 {
			fmt.Fprintf(buf, `<w:sz w:val="%d"/>`, size)
		}
		buf.WriteString("</w:rPr>")
	}
	buf.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(buf, []byte(strings.ToValidUTF8(text, "?")))
	buf.WriteString("</w:t></w:r></w:p>")
}

func outcomeLabel(r validation.Report) string {
	switch r.Kind() {
	case validation.Clean:
		return "passed"
	case validation.ContentIssues:
		return fmt.Sprintf("%d issue(s) found", r.IssueCount())
	default:
		return "internal error, support has been notified"
	}
}
