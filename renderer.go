package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const (
	backgroundCacheSize = 16
	fontStep            = 2
	shadowOffset        = 2
	fetchTimeout        = 30 * time.Second
	maxBackgroundBytes  = 32 << 20
)

var (
	fillColor   = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	textColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	shadowColor = color.RGBA{A: 0xa0}
	guideColor  = color.RGBA{R: 0xff, A: 0xff}
	lineColor   = color.RGBA{G: 0xc8, B: 0xff, A: 0xff}

	supportedImages = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
)

// Renderer turns resolved options into encoded PNG bytes
type Renderer interface {
	Render(ctx context.Context, opts BannerOptions) ([]byte, error)
}

// TextRenderer draws the banner text over a background image
type TextRenderer struct {
	fs          afero.Fs
	client      *http.Client
	backgrounds *lru.Cache[string, image.Image]
	logger      *log.Logger
}

// NewTextRenderer creates a renderer reading local backgrounds from fs
func NewTextRenderer(fs afero.Fs, logger *log.Logger) (*TextRenderer, error) {
	cache, err := lru.New[string, image.Image](backgroundCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating background cache: %w", err)
	}
	return &TextRenderer{
		fs:          fs,
		client:      &http.Client{Timeout: fetchTimeout},
		backgrounds: cache,
		logger:      logger,
	}, nil
}

// Render produces a CanvasWidth x CanvasHeight PNG with the text centred
// inside the padded area at the largest size that fits.
func (r *TextRenderer) Render(ctx context.Context, opts BannerOptions) ([]byte, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, opts.CanvasWidth, opts.CanvasHeight))
	if err := r.paintBackground(ctx, canvas, opts.Background); err != nil {
		return nil, err
	}

	face, layout, err := fitText(opts)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	r.logger.Debug("Fitted text", "text", opts.Text, "size", layout.size, "lines", len(layout.lines))

	drawLayout(canvas, face, layout, opts)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func validateOptions(opts BannerOptions) error {
	switch {
	case strings.TrimSpace(opts.Text) == "":
		return fmt.Errorf("%w: empty text", ErrInvalidOptions)
	case opts.CanvasWidth <= 0 || opts.CanvasHeight <= 0:
		return fmt.Errorf("%w: canvas %dx%d", ErrInvalidOptions, opts.CanvasWidth, opts.CanvasHeight)
	case opts.CanvasWidth > maxCanvasSize || opts.CanvasHeight > maxCanvasSize:
		return fmt.Errorf("%w: canvas %dx%d exceeds %d", ErrInvalidOptions, opts.CanvasWidth, opts.CanvasHeight, maxCanvasSize)
	case opts.HPadding < 0 || opts.WPadding < 0:
		return fmt.Errorf("%w: negative padding", ErrInvalidOptions)
	case opts.WPadding*2 >= opts.CanvasWidth || opts.HPadding*2 >= opts.CanvasHeight:
		return fmt.Errorf("%w: padding leaves no room for text", ErrInvalidOptions)
	case opts.InitialFontSize <= 0:
		return fmt.Errorf("%w: font size %d", ErrInvalidOptions, opts.InitialFontSize)
	}
	return nil
}

func (r *TextRenderer) paintBackground(ctx context.Context, canvas *image.RGBA, ref string) error {
	if ref == "" {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fillColor), image.Point{}, draw.Src)
		return nil
	}

	bg, err := r.background(ctx, ref)
	if err != nil {
		return err
	}
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), bg, coverRect(bg.Bounds(), canvas.Bounds()), draw.Src, nil)
	return nil
}

func (r *TextRenderer) background(ctx context.Context, ref string) (image.Image, error) {
	if img, ok := r.backgrounds.Get(ref); ok {
		return img, nil
	}

	data, err := r.readBackground(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackgroundUnreadable, ref, err)
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), supportedImages...) {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedImage, ref, mtype.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrBackgroundUnreadable, ref, err)
	}

	r.backgrounds.Add(ref, img)
	return img, nil
}

func (r *TextRenderer) readBackground(ctx context.Context, ref string) ([]byte, error) {
	if !isRemote(ref) {
		return afero.ReadFile(r.fs, ref)
	}

	r.logger.Debug("Fetching background", "url", ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: ref}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBackgroundBytes))
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// coverRect returns the centred region of src with the aspect ratio of dst,
// so scaling it fills dst without distortion.
func coverRect(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 {
		return src
	}

	if sw*dh > dw*sh {
		w := sh * dw / dh
		x := src.Min.X + (sw-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := sw * dh / dw
	y := src.Min.Y + (sh-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

type textLayout struct {
	size       int
	lines      []string
	widths     []fixed.Int26_6
	lineHeight int
	ascent     int
}

// fitText shrinks the font from InitialFontSize in fontStep increments until
// the wrapped text fits the padded area. The caller owns the returned face.
func fitText(opts BannerOptions) (font.Face, textLayout, error) {
	maxW := fixed.I(opts.CanvasWidth - 2*opts.WPadding)
	maxH := opts.CanvasHeight - 2*opts.HPadding
	// A face taller than the padded box never fits
	start := min(opts.InitialFontSize, maxH)
	floor := min(opts.MinFontSize, start)
	if floor <= 0 {
		floor = 1
	}

	fnt := opts.Font
	if fnt == nil {
		var err error
		if fnt, err = goBold(); err != nil {
			return nil, textLayout{}, err
		}
	}

	for size := start; ; size = max(size-fontStep, floor) {
		face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
			Size:    float64(size),
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, textLayout{}, fmt.Errorf("creating font face: %w", err)
		}

		layout, fits := layoutText(face, opts.Text, maxW, maxH, opts.NoWrap)
		if fits {
			layout.size = size
			return face, layout, nil
		}
		face.Close()

		if size == floor {
			return nil, textLayout{}, fmt.Errorf("%w: %q at %dpx", ErrTextOverflow, opts.Text, floor)
		}
	}
}

func layoutText(face font.Face, text string, maxW fixed.Int26_6, maxH int, noWrap bool) (textLayout, bool) {
	metrics := face.Metrics()
	layout := textLayout{
		lineHeight: metrics.Height.Ceil(),
		ascent:     metrics.Ascent.Ceil(),
	}

	words := strings.Fields(text)
	if noWrap {
		layout.lines = []string{strings.Join(words, " ")}
	} else {
		layout.lines = wrapWords(face, words, maxW)
	}

	for _, line := range layout.lines {
		w := font.MeasureString(face, line)
		if w > maxW {
			return layout, false
		}
		layout.widths = append(layout.widths, w)
	}
	return layout, len(layout.lines)*layout.lineHeight <= maxH
}

// wrapWords breaks words into greedy lines no wider than maxW. A single word
// wider than maxW stays on its own line and fails the fit check.
func wrapWords(face font.Face, words []string, maxW fixed.Int26_6) []string {
	var lines []string
	var current string
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current != "" && font.MeasureString(face, candidate) > maxW {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func drawLayout(canvas *image.RGBA, face font.Face, layout textLayout, opts BannerOptions) {
	top := (opts.CanvasHeight - len(layout.lines)*layout.lineHeight) / 2

	d := &font.Drawer{Dst: canvas, Face: face}
	for i, line := range layout.lines {
		x := (fixed.I(opts.CanvasWidth) - layout.widths[i]) / 2
		baseline := top + i*layout.lineHeight + layout.ascent

		d.Src = image.NewUniform(shadowColor)
		d.Dot = fixed.Point26_6{X: x + fixed.I(shadowOffset), Y: fixed.I(baseline + shadowOffset)}
		d.DrawString(line)

		d.Src = image.NewUniform(textColor)
		d.Dot = fixed.Point26_6{X: x, Y: fixed.I(baseline)}
		d.DrawString(line)

		if opts.Debug {
			lineTop := top + i*layout.lineHeight
			strokeRect(canvas, image.Rect(x.Floor(), lineTop, (x+layout.widths[i]).Ceil(), lineTop+layout.lineHeight), lineColor)
		}
	}

	if opts.Debug {
		strokeRect(canvas, image.Rect(opts.WPadding, opts.HPadding, opts.CanvasWidth-opts.WPadding, opts.CanvasHeight-opts.HPadding), guideColor)
	}
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

var goBold = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// loadFont parses the configured font file, falling back to Go Bold when no
// path is set.
func loadFont(fs afero.Fs, path string) (*opentype.Font, error) {
	if path == "" {
		return goBold()
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading font %s: %w", path, err)
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font %s: %w", path, err)
	}
	return fnt, nil
}
