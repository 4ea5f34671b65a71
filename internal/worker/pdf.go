package worker

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RenderNotesPDF lays out the notes document: title, the synthesized notes,
// then the full transcript in paragraph chunks.
func RenderNotesPDF(title, notes, transcript string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.MultiCell(0, 10, tr(title), "", "L", false)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr("Lecture Notes"), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 5, tr(notes), "", "L", false)
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr("Full Transcript"), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Arial", "", 10)
	for _, chunk := range chunkText(transcript, 2000) {
		pdf.MultiCell(0, 5, tr(chunk), "", "L", false)
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// chunkText splits long text so no single MultiCell call gets an unbounded
// paragraph.
func chunkText(s string, size int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}
