package render

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

// GIFName is the file the animation is written to.
const GIFName = "res.gif"

// DefaultGIFFrameLimit bounds the frames encoded into the animation when
// Options.GIFFrameLimit is zero.
const DefaultGIFFrameLimit = 500

// Options configures a Frames sink.
type Options struct {
	Dir        string // Where NNN.png frames go
	NumColours int
	Palette    string
	CellSize   int  // Pixels per cell side
	WritePNG   bool // Write one PNG per snapshot
	KeepFrames bool // Keep frames in memory for WriteGIF

	// GIFFrameLimit caps the frames WriteGIF encodes; longer runs are
	// sampled evenly, first and last frame included.
	GIFFrameLimit int
}

// keptFrame is a grid packed with grid.Encode, one byte per cell.
type keptFrame struct {
	width, height int
	cells         []byte
}

// Frames is a snapshot sink that renders each grid it receives.
// Write failures are logged and the first one is kept for Err.
type Frames struct {
	opts    Options
	palette color.Palette
	frames  []keptFrame
	written int
	err     error
}

// NewFrames creates a Frames sink.
func NewFrames(opts Options) (*Frames, error) {
	if opts.NumColours < 1 || opts.NumColours > 255 {
		return nil, fmt.Errorf("render: %d agent types do not fit a paletted image", opts.NumColours)
	}
	if opts.CellSize < 1 {
		opts.CellSize = 1
	}
	if opts.GIFFrameLimit == 0 {
		opts.GIFFrameLimit = DefaultGIFFrameLimit
	}
	if opts.GIFFrameLimit < 2 {
		opts.GIFFrameLimit = 2
	}
	if !Known(opts.Palette) {
		slog.Warn("unknown palette, using default", "palette", opts.Palette, "default", DefaultPalette)
	}
	return &Frames{
		opts:    opts,
		palette: Colours(opts.Palette, opts.NumColours),
	}, nil
}

// Snapshot writes the frame as a PNG and keeps the packed grid for the
// animation. Kept frames are rendered only in WriteGIF.
func (f *Frames) Snapshot(iteration int, v grid.View, happyPct float64) {
	if f.opts.WritePNG {
		path := filepath.Join(f.opts.Dir, fmt.Sprintf("%03d.png", iteration))
		if err := writePNG(path, f.Render(v)); err != nil {
			f.fail(fmt.Errorf("write frame %d: %w", iteration, err))
		} else {
			f.written++
			slog.Debug("frame written", "path", path, "happy_pct", fmt.Sprintf("%.2f", happyPct))
		}
	}
	if f.opts.KeepFrames {
		f.frames = append(f.frames, keptFrame{
			width:  v.Width(),
			height: v.Height(),
			cells:  grid.Encode(v),
		})
	}
}

// Render draws v as a paletted image, CellSize pixels per cell.
func (f *Frames) Render(v grid.View) *image.Paletted {
	size := f.opts.CellSize
	img := image.NewPaletted(image.Rect(0, 0, v.Width()*size, v.Height()*size), f.palette)
	for y := 0; y < v.Height(); y++ {
		for x := 0; x < v.Width(); x++ {
			idx := uint8(v.Get(x, y) + 1)
			for py := y * size; py < (y+1)*size; py++ {
				row := img.Pix[py*img.Stride:]
				for px := x * size; px < (x+1)*size; px++ {
					row[px] = idx
				}
			}
		}
	}
	return img
}

// Written returns the number of PNG frames written.
func (f *Frames) Written() int {
	return f.written
}

// FrameCount returns the number of frames kept for the animation.
func (f *Frames) FrameCount() int {
	return len(f.frames)
}

// WriteGIF encodes the kept frames into dir/res.gif and returns its path.
// delay is the time between frames in 100ths of a second.
func (f *Frames) WriteGIF(dir string, delay int) (string, error) {
	if len(f.frames) == 0 {
		return "", fmt.Errorf("render: no frames to animate")
	}

	kept := sampleFrames(f.frames, f.opts.GIFFrameLimit)
	if len(kept) < len(f.frames) {
		slog.Warn("too many frames for the gif, sampling",
			"frames", len(f.frames), "limit", f.opts.GIFFrameLimit)
	}

	anim := &gif.GIF{}
	for _, frame := range kept {
		g, err := grid.Decode(frame.width, frame.height, frame.cells)
		if err != nil {
			return "", fmt.Errorf("render: decode frame: %w", err)
		}
		anim.Image = append(anim.Image, f.Render(g))
		anim.Delay = append(anim.Delay, delay)
	}

	path := filepath.Join(dir, GIFName)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("create gif: %w", err)
	}
	if err := gif.EncodeAll(out, anim); err != nil {
		out.Close()
		return "", fmt.Errorf("encode gif: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close gif: %w", err)
	}
	return path, nil
}

// sampleFrames picks at most limit frames spread evenly over frames, keeping
// the first and the last.
func sampleFrames(frames []keptFrame, limit int) []keptFrame {
	n := len(frames)
	if n <= limit {
		return frames
	}
	out := make([]keptFrame, limit)
	for i := range out {
		out[i] = frames[i*(n-1)/(limit-1)]
	}
	return out
}

// Err returns the first frame write error, if any.
func (f *Frames) Err() error {
	return f.err
}

func (f *Frames) fail(err error) {
	slog.Error("frame render failed", "error", err)
	if f.err == nil {
		f.err = err
	}
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PrepareDir creates dir if needed and removes everything inside it, so a run
// never mixes its frames with a previous run's.
func PrepareDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}
