package render

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"

	"cardapi/internal/model"
)

// Business card geometry: 3.5" x 2" in points for PDF, at 300 DPI for raster.
const (
	pdfCardWidth  = 252.0
	pdfCardHeight = 144.0
	imgCardWidth  = 1050
	imgCardHeight = 600
)

func (r *CardRenderer) renderStyled(card *model.Card, format model.FileFormat) ([]byte, error) {
	if format == model.FormatPDF {
		return r.styledPDF(card)
	}
	return r.styledImage(card, format)
}

// styledPDF draws a business-card sized PDF with a header band, card
// metadata, and a verification QR code.
func (r *CardRenderer) styledPDF(card *model.Card) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pdfCardWidth, Ht: pdfCardHeight},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Header band.
	pdf.SetFillColor(30, 64, 175)
	pdf.Rect(0, 0, pdfCardWidth, 40, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(10, 20, "Digital Affiliation Card")
	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(10, 32, "Membership Credential")

	num := "#" + card.CardNumber
	pdf.SetFont("Helvetica", "B", 8)
	pdf.Text(pdfCardWidth-pdf.GetStringWidth(num)-10, 20, num)

	// Holder details.
	pdf.SetTextColor(31, 41, 55)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(10, 58, truncate(card.DisplayName, 25))

	pdf.SetTextColor(100, 116, 139)
	pdf.SetFont("Helvetica", "", 8)
	y := 70.0
	if card.CouncilName != "" {
		pdf.Text(10, y, truncate(card.CouncilName, 30))
		y += 10
	}
	if card.AffiliationType != "" {
		pdf.Text(10, y, card.AffiliationType)
		y += 12
	}

	pdf.SetTextColor(31, 41, 55)
	pdf.SetFont("Helvetica", "", 7)
	pdf.Text(10, y, "Status: "+card.StatusLabel)
	y += 8
	if card.DateIssued != nil {
		pdf.Text(10, y, "Issued: "+card.DateIssued.Format("01/02/2006"))
		y += 8
	}
	if card.DateExpires != nil {
		pdf.Text(10, y, "Expires: "+card.DateExpires.Format("01/02/2006"))
	}

	// Verification QR code, bottom right.
	qrPNG, err := qrcode.Encode(qrPayload(card), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	const qrSize = 50.0
	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", pdfCardWidth-qrSize-10, pdfCardHeight-qrSize-18,
		qrSize, qrSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetTextColor(100, 116, 139)
	pdf.SetFont("Helvetica", "", 6)
	label := "Scan to verify"
	pdf.Text(pdfCardWidth-qrSize-10+(qrSize-pdf.GetStringWidth(label))/2, pdfCardHeight-10, label)

	// Card border.
	pdf.SetDrawColor(211, 211, 211)
	pdf.SetLineWidth(0.5)
	pdf.Rect(0, 0, pdfCardWidth, pdfCardHeight, "D")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// styledImage draws the raster layout with gg. It needs a scalable font;
// without one the render fails and the simple strategy takes over.
func (r *CardRenderer) styledImage(card *model.Card, format model.FileFormat) ([]byte, error) {
	if r.fontPath == "" {
		return nil, fmt.Errorf("styled raster render requires a font, none configured")
	}

	dc := gg.NewContext(imgCardWidth, imgCardHeight)
	dc.SetHexColor("#ffffff")
	dc.Clear()

	dc.SetHexColor("#1e40af")
	dc.DrawRectangle(0, 0, imgCardWidth, 120)
	dc.Fill()

	if err := dc.LoadFontFace(r.fontPath, 42); err != nil {
		return nil, fmt.Errorf("load font %s: %w", r.fontPath, err)
	}
	dc.SetHexColor("#ffffff")
	dc.DrawString("Digital Affiliation Card", 30, 58)

	if err := dc.LoadFontFace(r.fontPath, 24); err != nil {
		return nil, fmt.Errorf("load font %s: %w", r.fontPath, err)
	}
	dc.DrawString("Membership Credential", 30, 98)
	num := "#" + card.CardNumber
	w, _ := dc.MeasureString(num)
	dc.DrawString(num, imgCardWidth-w-30, 58)

	if err := dc.LoadFontFace(r.fontPath, 36); err != nil {
		return nil, fmt.Errorf("load font %s: %w", r.fontPath, err)
	}
	dc.SetHexColor("#1f2937")
	y := 180.0
	dc.DrawString(truncate(card.DisplayName, 20), 30, y)
	y += 50

	if err := dc.LoadFontFace(r.fontPath, 20); err != nil {
		return nil, fmt.Errorf("load font %s: %w", r.fontPath, err)
	}
	dc.SetHexColor("#64748b")
	if card.CouncilName != "" {
		dc.DrawString(truncate(card.CouncilName, 35), 30, y)
		y += 30
	}
	if card.AffiliationType != "" {
		dc.DrawString(card.AffiliationType, 30, y)
		y += 40
	}
	dc.SetHexColor("#1f2937")
	dc.DrawString("Status: "+card.StatusLabel, 30, y)

	// QR code bottom right with label.
	q, err := qrcode.New(qrPayload(card), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	const qrSize = 150
	qrImg := q.Image(qrSize)
	qrX := imgCardWidth - qrSize - 30
	qrY := imgCardHeight - qrSize - 30
	dc.DrawImage(qrImg, qrX, qrY)

	dc.SetHexColor("#64748b")
	label := "Scan to verify"
	lw, _ := dc.MeasureString(label)
	dc.DrawString(label, float64(qrX)+(qrSize-lw)/2, float64(qrY)-10)

	dc.SetHexColor("#d3d3d3")
	dc.SetLineWidth(2)
	dc.DrawRectangle(1, 1, imgCardWidth-2, imgCardHeight-2)
	dc.Stroke()

	var buf bytes.Buffer
	if format == model.FormatPNG {
		err = png.Encode(&buf, dc.Image())
	} else {
		err = jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
