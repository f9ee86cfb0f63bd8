package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/browser/htmldom"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/selectors"
)

const adFrame = "https://tpc.googlesyndication.com/archive/sadbundle/1/index.html"

func newAssembler(cfg AssemblerConfig) *Assembler {
	sel := selectors.Default().Media
	if cfg.FrameWait == 0 {
		cfg.FrameWait = 10 * time.Millisecond
	}
	cfg.PollInterval = time.Millisecond
	return NewAssembler(NewExtractor(sel), sel, cfg)
}

func creativeElement(t *testing.T, page *htmldom.Page) browser.Element {
	t.Helper()
	el, err := page.Query(context.Background(), "creative")
	require.NoError(t, err)
	require.NotNil(t, el)
	return el
}

func framePage(t *testing.T, frameHTML string, opts ...htmldom.Option) *htmldom.Page {
	t.Helper()
	opts = append(opts, htmldom.WithFrame(adFrame, frameHTML))
	return newPage(t, `<html><body><creative class="has-variation"><iframe src="`+adFrame+`"></iframe></creative></body></html>`, opts...)
}

func TestAssemble_TextFastPath(t *testing.T) {
	page := framePage(t, `<html><body><a href="https://click.example/t"><img src="https://img.example/t.png"></a></body></html>`)

	v, err := newAssembler(AssemblerConfig{}).Assemble(context.Background(), creativeElement(t, page), model.FormatText)
	require.NoError(t, err)

	assert.Equal(t, adFrame, v.IframeURL)
	assert.Empty(t, v.Medias)
	assert.Empty(t, v.HTML)
	assert.True(t, strings.HasPrefix(v.Screenshot, "data:image/png;base64,"))
	assert.Zero(t, page.StableWaits())
}

func TestAssemble_ImageCapturesMediasAndHTML(t *testing.T) {
	page := framePage(t, `<html><body><a href="https://click.example/i"><img class="ad-img" src="https://img.example/i.png"></a><script>track()</script></body></html>`)

	v, err := newAssembler(AssemblerConfig{}).Assemble(context.Background(), creativeElement(t, page), model.FormatImage)
	require.NoError(t, err)

	assert.Equal(t, []model.AdMedia{
		{Type: model.MediaImage, URL: "https://img.example/i.png", ClickURL: "https://click.example/i"},
	}, v.Medias)
	assert.Contains(t, v.HTML, "ad-img")
	assert.Contains(t, v.HTML, "<script>")
	assert.NotEmpty(t, v.Screenshot)
}

func TestAssemble_ImageSanitizedHTML(t *testing.T) {
	page := framePage(t, `<html><body><img class="ad-img" src="https://img.example/i.png"><script>track()</script></body></html>`)

	v, err := newAssembler(AssemblerConfig{SanitizeHTML: true}).Assemble(context.Background(), creativeElement(t, page), model.FormatImage)
	require.NoError(t, err)

	assert.NotContains(t, v.HTML, "<script")
	assert.Contains(t, v.HTML, "https://img.example/i.png")
}

func TestAssemble_VideoWaitsForStableFrame(t *testing.T) {
	const yt = "https://www.youtube.com/embed/vid1"
	page := framePage(t, `<html><body><iframe src="`+yt+`"></iframe></body></html>`,
		htmldom.WithFrame(yt, `<html><body><img src="https://i.ytimg.example/poster.jpg"></body></html>`),
	)

	v, err := newAssembler(AssemblerConfig{VideoSettle: time.Millisecond}).Assemble(context.Background(), creativeElement(t, page), model.FormatVideo)
	require.NoError(t, err)

	assert.Equal(t, []model.AdMedia{{Type: model.MediaVideo, URL: yt, ClickURL: yt}}, v.Medias)
	assert.Empty(t, v.HTML)
	assert.Equal(t, 1, page.StableWaits())
	assert.NotEmpty(t, v.Screenshot)
}

func TestAssemble_PlainElementIsShallow(t *testing.T) {
	page := newPage(t, `<html><body><a href="https://click.example/p"><creative>
		<img src="https://img.example/direct.png">
		<div><img src="https://img.example/nested.png"></div>
	</creative></a></body></html>`)

	v, err := newAssembler(AssemblerConfig{}).Assemble(context.Background(), creativeElement(t, page), model.FormatImage)
	require.NoError(t, err)

	assert.Equal(t, []model.AdMedia{
		{Type: model.MediaImage, URL: "https://img.example/direct.png", ClickURL: "https://click.example/p"},
	}, v.Medias)
	assert.Empty(t, v.IframeURL)
	assert.Contains(t, v.HTML, "nested.png")
}

func TestAssemble_PlainTextHasNoMedias(t *testing.T) {
	page := newPage(t, `<html><body><a href="https://click.example/t"><creative>
		<img src="https://img.example/logo.png">
		<span>Buy now</span>
	</creative></a></body></html>`)

	v, err := newAssembler(AssemblerConfig{}).Assemble(context.Background(), creativeElement(t, page), model.FormatText)
	require.NoError(t, err)

	assert.Empty(t, v.Medias)
	assert.Empty(t, v.HTML)
	assert.NotEmpty(t, v.Screenshot)
}

func TestAssemble_FrameNotFound(t *testing.T) {
	page := newPage(t, `<html><body><creative><iframe src="https://ads.example/never"></iframe></creative></body></html>`)

	_, err := newAssembler(AssemblerConfig{}).Assemble(context.Background(), creativeElement(t, page), model.FormatImage)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFrameNotFound)
}

func TestAssemble_SrcdocFrame(t *testing.T) {
	page := newPage(t, `<html><body><creative><iframe srcdoc="<img src='https://img.example/s.png'>"></iframe></creative></body></html>`)

	v, err := newAssembler(AssemblerConfig{}).Assemble(context.Background(), creativeElement(t, page), model.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, "about:srcdoc", v.IframeURL)
	require.Len(t, v.Medias, 1)
	assert.Equal(t, "https://img.example/s.png", v.Medias[0].URL)
}
