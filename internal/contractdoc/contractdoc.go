// Package contractdoc renders coach contracts to PDF.
package contractdoc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"gymstudio.app/internal/coach"
)

var _ coach.ContractRenderer = (*Renderer)(nil)

// Studio is the employer side of the contract.
type Studio struct {
	Name           string
	LegalName      string
	Address        string
	TaxID          string
	Representative string
	Jurisdiction   string
	Currency       string
}

// Renderer builds contract PDFs. Output depends only on its input.
type Renderer struct {
	studio Studio
}

func New(studio Studio) *Renderer {
	if studio.Currency == "" {
		studio.Currency = "USD"
	}
	if studio.Jurisdiction == "" {
		studio.Jurisdiction = "the courts of the studio's registered domicile"
	}
	return &Renderer{studio: studio}
}

const (
	lineH    = 5.0
	gutter   = 6.0
	sigImage = "signature"
)

func (r *Renderer) RenderContract(c coach.Coach, k coach.Contract, sig *coach.Signature) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	// Фиксированные даты и порядок каталога: одинаковый вход даёт одинаковые байты.
	pdf.SetCreationDate(k.CreatedAt.UTC())
	pdf.SetModificationDate(k.CreatedAt.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle(fmt.Sprintf("Coaching services agreement v%d", k.Version), true)
	pdf.SetAuthor(r.studio.Name, true)
	pdf.SetCreator("gymstudio", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Contract %s, version %d. Page %d/{nb}", k.ID, k.Version, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(0, 8, tr("COACHING SERVICES AGREEMENT"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, lineH, tr(fmt.Sprintf("%s | Version %d | Issued %s", typeLabel(k.Type), k.Version, k.CreatedAt.UTC().Format("January 2, 2006"))), "", 1, "C", false, 0, "")
	if k.Supersedes != "" {
		pdf.CellFormat(0, lineH, tr("Supersedes contract "+k.Supersedes), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	r.declarations(pdf, tr, c)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, tr("CLAUSES"), "", 1, "L", false, 0, "")
	for i, cl := range r.clauses(c, k) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, lineH, tr(fmt.Sprintf("%d. %s", i+1, cl.title)), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, lineH, tr(cl.body), "", "J", false)
		pdf.Ln(2)
	}

	r.signatures(pdf, tr, c, k, sig)

	if pdf.Err() {
		return nil, fmt.Errorf("contractdoc: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("contractdoc: output: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) declarations(pdf *fpdf.Fpdf, tr func(string) string, c coach.Coach) {
	w, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (w - left - right - gutter) / 2

	studio := []string{
		"THE STUDIO",
		r.studio.LegalName,
		"Trading as " + r.studio.Name,
		"Address: " + r.studio.Address,
		"Tax ID: " + r.studio.TaxID,
		"Represented by " + r.studio.Representative,
	}
	person := []string{
		"THE COACH",
		c.Profile.FullName,
		"Email: " + c.Email,
		"Phone: " + c.Profile.Phone,
		"Address: " + c.Profile.Address,
		"Tax ID: " + c.Bank.TaxID,
	}

	y := pdf.GetY()
	maxY := y
	for col, lines := range [][]string{studio, person} {
		pdf.SetXY(left+float64(col)*(colW+gutter), y)
		for i, line := range lines {
			style := ""
			if i == 0 {
				style = "B"
			}
			pdf.SetFont("Helvetica", style, 9)
			pdf.SetX(left + float64(col)*(colW+gutter))
			pdf.MultiCell(colW, 4.5, tr(line), "", "L", false)
		}
		if pdf.GetY() > maxY {
			maxY = pdf.GetY()
		}
	}
	pdf.SetXY(left, maxY+4)
}

type clause struct {
	title string
	body  string
}

func (r *Renderer) clauses(c coach.Coach, k coach.Contract) []clause {
	term := "The agreement starts on " + k.StartDate.Format("January 2, 2006") + " and has no fixed end date."
	if k.EndDate != nil {
		term = fmt.Sprintf("The agreement starts on %s and ends on %s unless renewed by a new version.",
			k.StartDate.Format("January 2, 2006"), k.EndDate.Format("January 2, 2006"))
	}
	out := []clause{
		{"Object", fmt.Sprintf("The Coach will deliver %s classes at the Studio according to the schedule agreed between the parties.", categoryLabel(c.Category))},
		{"Term", term},
		{"Compensation", r.compensation(k)},
		{"Obligations", "The Coach will arrive prepared for every scheduled class, follow the Studio's safety protocols and keep certifications current. The Studio will provide the facilities, equipment and booking platform."},
		{"Confidentiality", "The Coach will not disclose member data, pricing or internal information of the Studio during the term of this agreement or after its end."},
		{"Termination", "Either party may end this agreement with fifteen days' written notice. A later version of this agreement supersedes this one."},
		{"Jurisdiction", "Any dispute arising from this agreement is submitted to " + r.studio.Jurisdiction + "."},
	}
	if k.Notes != "" {
		out = append(out, clause{"Additional terms", k.Notes})
	}
	return out
}

func (r *Renderer) compensation(k coach.Contract) string {
	var parts []string
	if k.BaseSalary != nil {
		parts = append(parts, "a monthly base salary of "+r.money(*k.BaseSalary))
	}
	if k.PerClassCommission != nil {
		parts = append(parts, r.money(*k.PerClassCommission)+" for each class delivered")
	}
	if len(parts) == 0 {
		return "Compensation follows the Studio's current rate sheet for " + typeLabel(k.Type) + " agreements."
	}
	return "The Studio will pay the Coach " + strings.Join(parts, " plus ") + ", settled monthly to the Coach's registered bank account."
}

func (r *Renderer) signatures(pdf *fpdf.Fpdf, tr func(string) string, c coach.Coach, k coach.Contract, sig *coach.Signature) {
	w, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (w - left - right - gutter) / 2

	pdf.Ln(6)
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+45 > pageH-20 {
		pdf.AddPage()
	}
	y := pdf.GetY()

	if sig != nil && len(sig.ImagePNG) > 0 {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(sigImage, opts, bytes.NewReader(sig.ImagePNG))
		pdf.ImageOptions(sigImage, left+colW+gutter, y, colW*0.6, 0, false, opts, 0, "")
	}
	y += 22
	pdf.Line(left, y, left+colW, y)
	pdf.Line(left+colW+gutter, y, left+2*colW+gutter, y)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(left, y+1)
	pdf.CellFormat(colW, lineH, tr(r.studio.Representative+", for the Studio"), "", 0, "C", false, 0, "")
	pdf.SetXY(left+colW+gutter, y+1)
	pdf.CellFormat(colW, lineH, tr(c.Profile.FullName+", the Coach"), "", 1, "C", false, 0, "")

	if k.Signed && k.SignedAt != nil {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetX(left + colW + gutter)
		line := "Signed electronically on " + k.SignedAt.UTC().Format(time.RFC3339)
		if k.SignatureIP != "" {
			line += " from " + k.SignatureIP
		}
		pdf.CellFormat(colW, lineH, tr(line), "", 1, "C", false, 0, "")
	}
}

func (r *Renderer) money(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	var grouped strings.Builder
	for i, ch := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(ch)
	}
	s := fmt.Sprintf("%s %s.%02d", r.studio.Currency, grouped.String(), cents%100)
	if neg {
		s = "-" + s
	}
	return s
}

func typeLabel(t coach.ContractType) string {
	switch t {
	case coach.ContractPerClass:
		return "Per-class"
	case coach.ContractSalaried:
		return "Salaried"
	case coach.ContractMixed:
		return "Mixed"
	}
	return string(t)
}

func categoryLabel(c coach.Category) string {
	switch c {
	case coach.CategoryCycling:
		return "indoor cycling"
	case coach.CategoryFunctional:
		return "functional training"
	case coach.CategoryBoth:
		return "indoor cycling and functional training"
	}
	return "fitness"
}
