package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/headshot/pkg/types"
)

// SubjectDetector finds the most salient square region of a photo. It runs
// offline and stands in for a face detector when no model server is
// configured: in a portrait the face is usually the busiest area near the
// upper center.
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	AnalysisSize int       // longest side of the downscaled working copy
	WindowRatios []float64 // window sides as a fraction of the shorter side
	CenterWeight float64   // penalty for windows far from the focus point
	FocusY       float64   // vertical focus point as a fraction of height
	MinScore     float64   // windows scoring below this are ignored
	MaxRegions   int
}

// DefaultConfig returns settings tuned for head-and-shoulders photos
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		AnalysisSize: 160,
		WindowRatios: []float64{0.25, 0.35, 0.5},
		CenterWeight: 0.3,
		FocusY:       0.4,
		MinScore:     0.02,
		MaxRegions:   10,
	}
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	if config.AnalysisSize <= 0 {
		config.AnalysisSize = DefaultConfig().AnalysisSize
	}
	if len(config.WindowRatios) == 0 {
		config.WindowRatios = DefaultConfig().WindowRatios
	}
	if config.MaxRegions <= 0 {
		config.MaxRegions = DefaultConfig().MaxRegions
	}
	return &SubjectDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// FaceBox converts the region to a face box, using the score as confidence
func (r Region) FaceBox() types.FaceBox {
	return types.FaceBox{
		X:          float64(r.X),
		Y:          float64(r.Y),
		Width:      float64(r.Width),
		Height:     float64(r.Height),
		Confidence: math.Min(r.Score, 1),
	}
}

// DetectFaces reports the single most salient region as a face. An image
// without any structure yields no faces.
func (d *SubjectDetector) DetectFaces(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regions, err := d.DetectSubjects(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return []types.FaceBox{}, nil
	}
	return []types.FaceBox{regions[0].FaceBox()}, nil
}

// DetectSubjects returns non-overlapping regions of interest in source
// pixel coordinates, best first
func (d *SubjectDetector) DetectSubjects(img image.Image) ([]Region, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	small := imaging.Fit(img, d.config.AnalysisSize, d.config.AnalysisSize, imaging.Box)
	w, h := small.Bounds().Dx(), small.Bounds().Dy()
	if w < 3 || h < 3 {
		return nil, nil
	}

	integral := integralImage(saliencyMap(small), w, h)
	candidates := d.scanWindows(integral, w, h)
	picked := suppress(candidates, d.config.MaxRegions)

	sx := float64(srcW) / float64(w)
	sy := float64(srcH) / float64(h)
	out := make([]Region, len(picked))
	for i, r := range picked {
		out[i] = Region{
			X:      int(math.Round(float64(r.X) * sx)),
			Y:      int(math.Round(float64(r.Y) * sy)),
			Width:  int(math.Round(float64(r.Width) * sx)),
			Height: int(math.Round(float64(r.Height) * sy)),
			Score:  r.Score,
		}
	}
	return out, nil
}

// saliencyMap scores each pixel by its luminance difference to its four
// neighbours, normalized to [0,1]
func saliencyMap(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			a := float64(p[3]) / 255
			lum[y*w+x] = a * (0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])) / 255
		}
	}

	sal := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			sal[y*w+x] = (math.Abs(c-lum[y*w+x-1]) +
				math.Abs(c-lum[y*w+x+1]) +
				math.Abs(c-lum[(y-1)*w+x]) +
				math.Abs(c-lum[(y+1)*w+x])) / 4
		}
	}
	return sal
}

// integralImage returns a (w+1)x(h+1) summed-area table of m
func integralImage(m []float64, w, h int) []float64 {
	stride := w + 1
	sat := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum float64
		for x := 0; x < w; x++ {
			rowSum += m[y*w+x]
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + rowSum
		}
	}
	return sat
}

func windowMean(sat []float64, w, x, y, size int) float64 {
	stride := w + 1
	x2, y2 := x+size, y+size
	sum := sat[y2*stride+x2] - sat[y*stride+x2] - sat[y2*stride+x] + sat[y*stride+x]
	return sum / float64(size*size)
}

func (d *SubjectDetector) scanWindows(sat []float64, w, h int) []Region {
	shorter := w
	if h < shorter {
		shorter = h
	}

	focusX, focusY := float64(w)/2, float64(h)*d.config.FocusY
	maxDist := math.Hypot(float64(w), float64(h)) / 2

	var regions []Region
	for _, ratio := range d.config.WindowRatios {
		size := int(float64(shorter) * ratio)
		if size < 4 {
			continue
		}
		step := size / 8
		if step < 1 {
			step = 1
		}

		for y := 0; y+size <= h; y += step {
			for x := 0; x+size <= w; x += step {
				cx, cy := float64(x)+float64(size)/2, float64(y)+float64(size)/2
				dist := math.Hypot(cx-focusX, cy-focusY) / maxDist
				score := windowMean(sat, w, x, y, size) * (1 - d.config.CenterWeight*dist)
				if score < d.config.MinScore {
					continue
				}
				regions = append(regions, Region{X: x, Y: y, Width: size, Height: size, Score: score})
			}
		}
	}
	return regions
}

// suppress keeps the best regions, dropping any that mostly overlap a
// better one
func suppress(regions []Region, limit int) []Region {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Score > regions[j].Score
	})

	var kept []Region
	for _, r := range regions {
		if len(kept) == limit {
			break
		}
		overlaps := false
		for _, k := range kept {
			if iou(r, k) > 0.3 {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	return kept
}

func iou(a, b Region) float64 {
	ra := image.Rect(a.X, a.Y, a.X+a.Width, a.Y+a.Height)
	rb := image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
	inter := ra.Intersect(rb)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	return float64(ia) / float64(a.Area()+b.Area()-ia)
}
