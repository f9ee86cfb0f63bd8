package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		want   int
	}{
		{FormatText, 1},
		{FormatImage, 2},
		{FormatVideo, 3},
		{Format(""), 0},
		{Format("AUDIO"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.format.Code(), string(tt.format))
		if tt.want != 0 {
			assert.Equal(t, tt.format, FormatFromCode(tt.want))
		}
	}
	assert.Equal(t, Format(""), FormatFromCode(7))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatVideo, ParseFormat("VIDEO"))
	assert.Equal(t, FormatImage, ParseFormat("IMAGE"))
	assert.Equal(t, FormatText, ParseFormat("TEXT"))
	assert.Equal(t, FormatText, ParseFormat("video"))
	assert.Equal(t, FormatText, ParseFormat(""))
}

func TestResolvePreviewImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		creative Creative
		want     string
	}{
		{
			name: "explicit preview wins",
			creative: Creative{
				PreviewImage: "https://img/staged.png",
				Variants:     []Variant{{Screenshot: "data:image/png;base64,AAA"}},
			},
			want: "https://img/staged.png",
		},
		{
			name: "first non-empty screenshot",
			creative: Creative{Variants: []Variant{
				{Medias: []AdMedia{{Type: MediaImage, URL: "https://img/1.png"}}},
				{Screenshot: "data:image/png;base64,BBB"},
			}},
			want: "data:image/png;base64,BBB",
		},
		{
			name: "first media url in document order",
			creative: Creative{Variants: []Variant{
				{Medias: []AdMedia{{Type: MediaImage, URL: ""}, {Type: MediaImage, URL: "https://img/1.png"}}},
				{Medias: []AdMedia{{Type: MediaVideo, URL: "https://video/2"}}},
			}},
			want: "https://img/1.png",
		},
		{
			name:     "nothing available",
			creative: Creative{Variants: []Variant{{}}},
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.creative.ResolvePreviewImage())
		})
	}
}

func TestNormalizeRegions(t *testing.T) {
	t.Parallel()

	got := NormalizeRegions([]string{" Vietnam ", "", "   ", "Japan"})
	assert.Equal(t, []string{"Vietnam", "Japan"}, got)
	assert.Empty(t, NormalizeRegions(nil))
}

func TestStagedCreativeOverlay(t *testing.T) {
	t.Parallel()

	shell := &StagedCreative{
		Code:           "CR1",
		AdvertiserCode: "AR1",
		AdvertiserName: "Acme",
		Format:         FormatVideo,
		Link:           "https://example.com/creative/CR1",
	}

	c := &Creative{Code: "CR1", Advertiser: Advertiser{Code: "AR1", Name: "Acme Ltd"}}
	shell.Overlay(c)
	assert.Equal(t, "Acme Ltd", c.Advertiser.Name, "detail name wins")
	assert.Equal(t, FormatVideo, c.Format, "shell fills unknown format")
	assert.Equal(t, "https://example.com/creative/CR1", c.Link)

	c2 := &Creative{Format: FormatImage}
	shell.Overlay(c2)
	assert.Equal(t, FormatImage, c2.Format)
	assert.Equal(t, "CR1", c2.Code)

	var nilShell *StagedCreative
	assert.NotPanics(t, func() { nilShell.Overlay(c2) })
}
