// Package geometry holds the rectangle math shared by the compositor and the
// crop suggestion engine. All functions are pure.
package geometry

import (
	"math"

	"github.com/menta2k/headshot/pkg/types"
)

// FitRect returns the smallest centered rectangle with the source aspect
// ratio that covers a dstW x dstH canvas. The overflowing axis extends past
// the canvas on both sides and is cropped when drawn.
func FitRect(srcW, srcH, dstW, dstH float64) types.Rect {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return types.Rect{}
	}

	srcRatio := srcW / srcH
	dstRatio := dstW / dstH

	var w, h float64
	if srcRatio >= dstRatio {
		// Wider than the canvas: height fills, width overflows
		h = dstH
		w = dstH * srcRatio
	} else {
		w = dstW
		h = dstW / srcRatio
	}

	return types.Rect{
		X:      (dstW - w) / 2,
		Y:      (dstH - h) / 2,
		Width:  w,
		Height: h,
	}
}

// ClampRect moves r inside [0,containerW]x[0,containerH]. Oversized
// dimensions are truncated to the container first, then the position is
// shifted so the whole rectangle fits.
func ClampRect(r types.Rect, containerW, containerH float64) types.Rect {
	r.Width = clamp(r.Width, 0, containerW)
	r.Height = clamp(r.Height, 0, containerH)
	r.X = clamp(r.X, 0, containerW-r.Width)
	r.Y = clamp(r.Y, 0, containerH-r.Height)
	return r
}

// SquareFromBounds pads the box (minX,minY)-(maxX,maxY) by paddingRatio of
// its larger side on every edge and grows the shorter axis, recentered, so
// the result is a square.
func SquareFromBounds(minX, minY, maxX, maxY, paddingRatio float64) types.Rect {
	w := maxX - minX
	h := maxY - minY
	pad := paddingRatio * math.Max(w, h)

	r := types.Rect{
		X:      minX - pad,
		Y:      minY - pad,
		Width:  w + 2*pad,
		Height: h + 2*pad,
	}

	side := math.Max(r.Width, r.Height)
	r.X -= (side - r.Width) / 2
	r.Y -= (side - r.Height) / 2
	r.Width = side
	r.Height = side
	return r
}

// Union returns the smallest rectangle containing every rect. ok is false
// when rects is empty.
func Union(rects []types.Rect) (u types.Rect, ok bool) {
	if len(rects) == 0 {
		return types.Rect{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, r := range rects {
		minX = math.Min(minX, r.X)
		minY = math.Min(minY, r.Y)
		maxX = math.Max(maxX, r.Right())
		maxY = math.Max(maxY, r.Bottom())
	}

	return types.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// CenterSquare returns the largest square centered in a w x h area
func CenterSquare(w, h float64) types.Rect {
	side := math.Min(w, h)
	if side < 0 {
		side = 0
	}
	return types.Rect{
		X:      (w - side) / 2,
		Y:      (h - side) / 2,
		Width:  side,
		Height: side,
	}
}

// Center returns the midpoint of r
func Center(r types.Rect) (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
