package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/alienxp03/toron/internal/core"
)

// PDFExporter exports debates to PDF format.
type PDFExporter struct{}

// Export writes the debate as PDF.
func (e *PDFExporter) Export(doc *Document, w io.Writer) error {
	conv := doc.Conversation

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	text := func(s string) string {
		return tr(e.sanitizeText(s))
	}

	// Add first page
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, text(doc.Title()), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate Information")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	e.addMetadataRow(pdf, "ID:", core.ShortID(conv.ID)+"...")
	e.addMetadataRow(pdf, "Mode:", formatMode(conv.DebateMode))
	e.addMetadataRow(pdf, "Status:", string(conv.Status))
	e.addMetadataRow(pdf, "Turns:", fmt.Sprintf("%d / %d", conv.TurnCount, conv.MaxTurns))
	e.addMetadataRow(pdf, "Created:", conv.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	if finished(conv) {
		e.addMetadataRow(pdf, "Duration:", formatDuration(conv.CreatedAt, conv.UpdatedAt))
	}
	pdf.Ln(5)

	// Stances section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Stances")
	pdf.Ln(8)

	e.addStanceBox(pdf, firstLabel(conv.IsAIVsAI()), text(conv.SideLabel(core.SideA)), doc.Votes.User, 200, 230, 255) // Light blue
	pdf.Ln(3)
	e.addStanceBox(pdf, secondLabel(conv.IsAIVsAI()), text(conv.SideLabel(core.SideB)), doc.Votes.Agent, 200, 255, 200) // Light green
	pdf.Ln(5)

	// Debate section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate")
	pdf.Ln(8)

	if len(doc.Speeches) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No turns recorded.")
		pdf.Ln(6)
	} else {
		for i, s := range doc.Speeches {
			// Check if we need a new page
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}

			// Speakers alternate colors
			if i%2 == 0 {
				pdf.SetFillColor(200, 230, 255) // Light blue
			} else {
				pdf.SetFillColor(200, 255, 200) // Light green
			}

			pdf.SetFont("Arial", "B", 10)
			header := fmt.Sprintf("Turn %d - %s", s.Number, strings.TrimSpace(s.Speaker))
			if s.Stance != "" {
				header += fmt.Sprintf(" (%s)", s.Stance)
			}
			pdf.CellFormat(0, 7, text(header), "", 1, "", true, 0, "")

			pdf.SetFont("Arial", "", 9)
			pdf.SetFillColor(255, 255, 255)
			pdf.MultiCell(0, 5, text(s.Content), "", "", false)
			pdf.Ln(5)
		}
	}

	// Audience comments
	if len(doc.Comments) > 0 {
		if pdf.GetY() > 230 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Audience")
		pdf.Ln(8)

		for _, c := range doc.Comments {
			pdf.SetFont("Arial", "B", 9)
			name := c.Nickname
			if c.IsTagIn {
				name += " (tag-in)"
			}
			pdf.Cell(40, 5, text(name))
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(0, 5, text(c.Content), "", "", false)
		}
		pdf.Ln(3)
	}

	// Verdict
	if conv.UserVerdict != "" {
		if pdf.GetY() > 230 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Verdict")
		pdf.Ln(8)

		pdf.SetFillColor(255, 240, 200) // Light amber
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, text(conv.UserVerdict), "", "", true)
	}

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from toron", "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

// ContentType returns the MIME type for PDF.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

// Helper to add a metadata row
func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, value)
	pdf.Ln(5)
}

// Helper to add a stance box with its vote count
func (e *PDFExporter) addStanceBox(pdf *gofpdf.Fpdf, title, stance string, votes int, r, g, b int) {
	pdf.SetFillColor(r, g, b)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, title, "", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(255, 255, 255)
	pdf.Cell(25, 5, "Stance:")
	pdf.Cell(0, 5, stance)
	pdf.Ln(5)
	pdf.Cell(25, 5, "Votes:")
	pdf.Cell(0, 5, fmt.Sprintf("%d", votes))
	pdf.Ln(5)
}

// Sanitize text for PDF (remove problematic characters)
func (e *PDFExporter) sanitizeText(text string) string {
	// The core fonts are cp1252; map common punctuation before translating.
	replacer := strings.NewReplacer(
		"\u2018", "'", // Left single quote
		"\u2019", "'", // Right single quote
		"\u201C", "\"", // Left double quote
		"\u201D", "\"", // Right double quote
		"\u2013", "-", // En dash
		"\u2014", "--", // Em dash
		"\u2026", "...", // Ellipsis
		"\u2022", "*", // Bullet
		"\u00A0", " ", // Non-breaking space
	)
	return replacer.Replace(text)
}
