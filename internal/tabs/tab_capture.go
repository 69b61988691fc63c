package tabs

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// SetCaptureThumbnails allocates or drops the thumbnail buffer.
func (t *Tab) SetCaptureThumbnails(enabled bool) {
	t.captureMu.Lock()
	defer t.captureMu.Unlock()
	if !enabled || t.captureW <= 0 || t.captureH <= 0 {
		if t.capture != nil {
			t.capture = nil
			t.delegate.DeleteThumbnail(t)
		}
		return
	}
	if t.capture != nil {
		return
	}
	t.capture = image.NewRGBA(image.Rect(0, 0, t.captureW, t.captureH))
	draw.Draw(t.capture, t.capture.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
}

func (t *Tab) CaptureSize() (int, int) { return t.captureW, t.captureH }

// requestCapture asks for an async thumbnail of the main view.
func (t *Tab) requestCapture() {
	if t.view == nil {
		return
	}
	t.captureMu.Lock()
	enabled := t.capture != nil
	t.captureMu.Unlock()
	if enabled {
		t.delegate.RequestCapture(t, t.view)
	}
}

// UpdateCapture scales img into the thumbnail buffer. It is safe to call from
// any goroutine.
func (t *Tab) UpdateCapture(img image.Image) {
	t.captureMu.Lock()
	defer t.captureMu.Unlock()
	if t.capture == nil || img == nil {
		return
	}
	draw.ApproxBiLinear.Scale(t.capture, t.capture.Bounds(), img, img.Bounds(), draw.Src, nil)
}

// Screenshot returns a copy of the thumbnail buffer, or nil when thumbnails
// are disabled.
func (t *Tab) Screenshot() *image.RGBA {
	t.captureMu.Lock()
	defer t.captureMu.Unlock()
	if t.capture == nil {
		return nil
	}
	out := image.NewRGBA(t.capture.Bounds())
	copy(out.Pix, t.capture.Pix)
	return out
}
