package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"cardapi/internal/model"
)

// The simple strategy is the deterministic fallback: fixed layout, plain
// border, no QR code, no external assets. PDFs use the built-in Helvetica
// core font; raster output uses the bitmap basicfont face.

func (r *CardRenderer) renderSimple(card *model.Card, format model.FileFormat) ([]byte, error) {
	if format == model.FormatPDF {
		return simplePDF(card)
	}
	return simpleImage(card, format)
}

func cardLines(card *model.Card) []string {
	lines := []string{
		"Digital Affiliation Card",
		"Card Number: " + card.CardNumber,
		"Name: " + card.DisplayName,
	}
	if card.CouncilName != "" {
		lines = append(lines, "Council: "+card.CouncilName)
	}
	if card.AffiliationType != "" {
		lines = append(lines, "Affiliation: "+card.AffiliationType)
	}
	lines = append(lines, "Status: "+card.StatusLabel)
	if card.DateExpires != nil {
		lines = append(lines, "Expires: "+card.DateExpires.Format("01/02/2006"))
	}
	return lines
}

func simplePDF(card *model.Card) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pdfCardWidth, Ht: pdfCardHeight},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetTextColor(0, 0, 0)
	y := 24.0
	for i, line := range cardLines(card) {
		if i == 0 {
			pdf.SetFont("Helvetica", "B", 12)
		} else {
			pdf.SetFont("Helvetica", "", 9)
		}
		pdf.Text(14, y, line)
		y += 15
	}

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(1)
	pdf.Rect(2, 2, pdfCardWidth-4, pdfCardHeight-4, "D")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func simpleImage(card *model.Card, format model.FileFormat) ([]byte, error) {
	const width, height = 700, 400

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// Plain 2px border.
	black := image.NewUniform(color.Black)
	draw.Draw(img, image.Rect(0, 0, width, 2), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, height-2, width, height), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, 2, height), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(width-2, 0, width, height), black, image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  img,
		Src:  black,
		Face: basicfont.Face7x13,
	}
	y := 40
	for _, line := range cardLines(card) {
		d.Dot = fixed.P(30, y)
		d.DrawString(line)
		y += 24
	}

	var buf bytes.Buffer
	var err error
	if format == model.FormatPNG {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
