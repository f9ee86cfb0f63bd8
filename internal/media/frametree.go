package media

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
)

// FrameTree renders the frame hierarchy below f, one indented URL per line.
// Ad frames are marked with a trailing "[ad]".
func (x *Extractor) FrameTree(ctx context.Context, f browser.Frame) ([]string, error) {
	var lines []string
	var walk func(f browser.Frame, depth int) error
	walk = func(f browser.Frame, depth int) error {
		url := f.URL()
		line := strings.Repeat("  ", depth) + url
		if x.IsAdFrame(url) {
			line += " [ad]"
		}
		lines = append(lines, line)
		children, err := f.ChildFrames(ctx)
		if err != nil {
			return eris.Wrap(err, "media: frame tree")
		}
		for _, c := range children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if f == nil {
		return nil, nil
	}
	if err := walk(f, 0); err != nil {
		return nil, err
	}
	return lines, nil
}

// DumpFrameTree logs the frame hierarchy at debug level.
func (x *Extractor) DumpFrameTree(ctx context.Context, f browser.Frame) {
	if !zap.L().Core().Enabled(zap.DebugLevel) {
		return
	}
	lines, err := x.FrameTree(ctx, f)
	if err != nil {
		zap.L().Debug("frame tree unavailable", zap.Error(err))
		return
	}
	zap.L().Debug("frame tree", zap.Strings("frames", lines))
}
