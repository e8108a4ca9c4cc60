// Package export renders the declared item list as a printable document.
package export

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strconv"
	"time"

	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog/log"
)

// FileName is the suggested name of the exported document
const FileName = "food_inventory_list.pdf"

// Meta is printed in the document header
type Meta struct {
	Date        time.Time
	Destination string
}

// Exporter renders items, in the given order, to w
type Exporter interface {
	Export(w io.Writer, items []models.DeclaredItem, meta Meta) error
	ContentType() string
}

type rgb struct{ r, g, b int }

var (
	brandOrange = rgb{249, 115, 22}
	headDark    = rgb{67, 20, 7}
	rowTint     = rgb{255, 247, 237}
	textDark    = rgb{30, 41, 59}
)

const (
	marginMM     = 14.0
	headerBandMM = 40.0
	tableTopMM   = 50.0
	headRowMM    = 9.0
	minRowMM     = 25.0
	imageMM      = 20.0
	lineMM       = 4.5
	padMM        = 2.0
)

var (
	columns = []string{"Photo", "Product Details", "Ingredients", "Weight", "Qty"}
	// widths in mm; the ingredients column takes what is left of the page
	fixedWidths = map[int]float64{0: 25, 1: 40, 3: 20, 4: 15}
)

// PDFExporter renders an A4 "Food Inventory List"
type PDFExporter struct{}

// NewPDFExporter creates a PDF exporter
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType returns the MIME type of the produced document
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

// Export writes the PDF for items to w
func (e *PDFExporter) Export(w io.Writer, items []models.DeclaredItem, meta Meta) error {
	if meta.Date.IsZero() {
		meta.Date = time.Now()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginMM)
	pdf.SetTitle("Food Inventory List", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	widths := columnWidths(pageW)

	pdf.AddPage()
	drawHeader(pdf, pageW, meta, tr)
	y := drawTableHead(pdf, widths, tableTopMM, tr)

	for i, item := range items {
		cells := rowCells(item)
		h := rowHeight(pdf, widths, cells, tr)

		if y+h > pageH-marginMM {
			pdf.AddPage()
			y = drawTableHead(pdf, widths, marginMM, tr)
		}

		drawRow(pdf, widths, y, h, i%2 == 1, cells, tr)
		drawPreview(pdf, item, marginMM, y, widths[0], h)
		y += h
	}

	if pdf.Err() {
		return fmt.Errorf("failed to render pdf: %w", pdf.Error())
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}

	log.Debug().Int("items", len(items)).Int("pages", pdf.PageNo()).Msg("PDF exported")
	return nil
}

func columnWidths(pageW float64) []float64 {
	widths := make([]float64, len(columns))
	used := 0.0
	for i, w := range fixedWidths {
		widths[i] = w
		used += w
	}
	widths[2] = pageW - 2*marginMM - used
	return widths
}

func drawHeader(pdf *fpdf.Fpdf, pageW float64, meta Meta, tr func(string) string) {
	pdf.SetFillColor(brandOrange.r, brandOrange.g, brandOrange.b)
	pdf.Rect(0, 0, pageW, headerBandMM, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.Text(marginMM, 20, "Food Inventory List")

	pdf.SetFont("Helvetica", "", 10)
	line := "Date: " + meta.Date.Format("2 Jan 2006")
	if meta.Destination != "" {
		line += "    Destination: " + meta.Destination
	}
	pdf.Text(marginMM, 32, tr(line))
}

func drawTableHead(pdf *fpdf.Fpdf, widths []float64, y float64, tr func(string) string) float64 {
	pdf.SetFillColor(headDark.r, headDark.g, headDark.b)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetXY(marginMM, y)
	for i, title := range columns {
		pdf.CellFormat(widths[i], headRowMM, tr(title), "", 0, "CM", true, 0, "")
	}
	return y + headRowMM
}

// rowCells returns the text of each column; the photo column is empty
func rowCells(item models.DeclaredItem) []string {
	return []string{
		"",
		item.Brand + "\n" + item.Name,
		item.Ingredients,
		item.Weight,
		strconv.Itoa(item.Quantity),
	}
}

func cellLines(pdf *fpdf.Fpdf, width float64, text string, tr func(string) string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, l := range pdf.SplitLines([]byte(tr(text)), width-2*padMM) {
		out = append(out, string(l))
	}
	return out
}

func rowHeight(pdf *fpdf.Fpdf, widths []float64, cells []string, tr func(string) string) float64 {
	pdf.SetFont("Helvetica", "", 9)
	h := minRowMM
	for i, text := range cells {
		if need := float64(len(cellLines(pdf, widths[i], text, tr)))*lineMM + 2*padMM; need > h {
			h = need
		}
	}
	return h
}

func drawRow(pdf *fpdf.Fpdf, widths []float64, y, h float64, tinted bool, cells []string, tr func(string) string) {
	if tinted {
		pdf.SetFillColor(rowTint.r, rowTint.g, rowTint.b)
		pdf.Rect(marginMM, y, sum(widths), h, "F")
	}
	pdf.SetTextColor(textDark.r, textDark.g, textDark.b)

	x := marginMM
	for i, text := range cells {
		style, align := "", "C"
		switch i {
		case 1:
			style, align = "B", "L"
		case 2:
			align = "L"
		}
		pdf.SetFont("Helvetica", style, 9)

		lines := cellLines(pdf, widths[i], text, tr)
		top := y + (h-float64(len(lines))*lineMM)/2
		for j, line := range lines {
			pdf.SetXY(x+padMM, top+float64(j)*lineMM)
			pdf.CellFormat(widths[i]-2*padMM, lineMM, line, "", 0, align, false, 0, "")
		}
		x += widths[i]
	}
}

// drawPreview places the item photo in its cell. Previews fpdf cannot
// read are skipped so one bad image does not spoil the document.
func drawPreview(pdf *fpdf.Fpdf, item models.DeclaredItem, x, y, cellW, cellH float64) {
	if item.Preview == nil || len(item.Preview.Data) == 0 {
		return
	}

	imageType := ""
	switch item.Preview.MIMEType {
	case "image/jpeg":
		imageType = "JPG"
	case "image/png":
		imageType = "PNG"
	default:
		return
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(item.Preview.Data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		log.Warn().Err(err).Str("id", item.ID).Msg("Skipping unreadable preview in PDF")
		return
	}

	if pdf.Err() {
		return
	}
	name := "preview-" + item.ID
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(item.Preview.Data))
	if pdf.Err() {
		// fpdf errors are sticky; drop this image and keep the document
		log.Warn().Err(pdf.Error()).Str("id", item.ID).Msg("Skipping preview fpdf cannot embed")
		pdf.ClearError()
		return
	}

	// fit inside a square, keeping the aspect ratio
	w, h := imageMM, imageMM
	if cfg.Width > cfg.Height {
		h = imageMM * float64(cfg.Height) / float64(cfg.Width)
	} else {
		w = imageMM * float64(cfg.Width) / float64(cfg.Height)
	}
	pdf.ImageOptions(name, x+(cellW-w)/2, y+(cellH-h)/2, w, h, false, opts, 0, "")
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

var _ Exporter = (*PDFExporter)(nil)
