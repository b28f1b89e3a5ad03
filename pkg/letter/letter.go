package letter

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/promtec/orientation-api/internal/dto"
	"github.com/promtec/orientation-api/pkg/config"
)

// Builder renders slot confirmation letters as PDF documents.
type Builder struct {
	org config.OrganizationConfig
}

// NewBuilder constructs a letter builder with the organization's contact
// details for the footer.
func NewBuilder(org config.OrganizationConfig) *Builder {
	return &Builder{org: org}
}

// Render produces one letter per school: the slot's schedule followed by the
// school's confirmed students and the organization contact block.
func (b *Builder) Render(summary dto.ConfirmationSummary) ([]byte, error) {
	if len(summary.Schools) == 0 {
		return nil, fmt.Errorf("letter requires at least one school")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)

	for _, school := range summary.Schools {
		pdf.AddPage()

		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, "Confirmation of participation", "", 1, "C", false, 0, "")
		pdf.Ln(4)

		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 6, school.SchoolName, "", 1, "", false, 0, "")
		pdf.Ln(2)
		pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s", summary.Slot.Date.Format("02.01.2006")), "", 1, "", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Time period: %s", summary.Slot.TimePeriod), "", 1, "", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Department: %s", summary.Slot.Department), "", 1, "", false, 0, "")
		pdf.Ln(6)

		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(90, 8, "Student", "1", 0, "", false, 0, "")
		pdf.CellFormat(80, 8, "Class", "1", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, student := range school.Students {
			pdf.CellFormat(90, 7, fmt.Sprintf("%s %s", student.FirstName, student.LastName), "1", 0, "", false, 0, "")
			pdf.CellFormat(80, 7, student.SchoolClass, "1", 1, "", false, 0, "")
		}

		pdf.Ln(10)
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s %s", b.org.ContactFirstName, b.org.ContactLastName), "", 1, "", false, 0, "")
		pdf.CellFormat(0, 5, fmt.Sprintf("Tel. %s", b.org.Telephone), "", 1, "", false, 0, "")
		pdf.CellFormat(0, 5, b.org.Email, "", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render letter: %w", err)
	}
	return buf.Bytes(), nil
}
