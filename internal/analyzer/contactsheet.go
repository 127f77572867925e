package analyzer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/bdougie/anomalyvision/internal/models"
)

// ContactSheet tiles the request frames into one JPEG, left to right and top
// to bottom, for models that accept a single image per message.
func ContactSheet(req models.AnalysisRequest) ([]byte, error) {
	if len(req.Frames) == 0 {
		return nil, fmt.Errorf("no frames to tile")
	}

	tiles := make([]image.Image, 0, len(req.Frames))
	cellW, cellH := 0, 0
	for i, frame := range req.Frames {
		_, data, err := DecodeDataURL(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		b := img.Bounds()
		cellW = max(cellW, b.Dx())
		cellH = max(cellH, b.Dy())
		tiles = append(tiles, img)
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(tiles)))))
	rows := (len(tiles) + cols - 1) / cols

	sheet := image.NewRGBA(image.Rect(0, 0, cols*cellW, rows*cellH))
	draw.Draw(sheet, sheet.Bounds(), image.Black, image.Point{}, draw.Src)
	for i, img := range tiles {
		origin := image.Pt((i%cols)*cellW, (i/cols)*cellH)
		b := img.Bounds()
		draw.Draw(sheet, image.Rectangle{Min: origin, Max: origin.Add(b.Size())}, img, b.Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sheet, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode contact sheet: %w", err)
	}
	return buf.Bytes(), nil
}
