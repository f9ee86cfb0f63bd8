// Package selectors holds the CSS selectors and URL patterns used to read
// the transparency site. They change whenever the site markup changes, so
// they load from an optional YAML file over built-in defaults.
package selectors

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Set is the full selector configuration.
type Set struct {
	Listing Listing `yaml:"listing"`
	Detail  Detail  `yaml:"detail"`
	Media   Media   `yaml:"media"`
}

// Listing selectors drive the search/listing page.
type Listing struct {
	SearchInput     string `yaml:"search_input"`
	Suggestions     string `yaml:"suggestions"`
	FirstSuggestion string `yaml:"first_suggestion"`
	Grid            string `yaml:"grid"`
	Anchor          string `yaml:"anchor"`
	Thumbnail       string `yaml:"thumbnail"`
	LoadMore        string `yaml:"load_more"`
	AdvertiserName  string `yaml:"advertiser_name"`
	// ResponseMatch is a URL substring of the listing API call.
	ResponseMatch string `yaml:"response_match"`
}

// Detail selectors drive the creative detail page.
type Detail struct {
	AdvertiserName   string `yaml:"advertiser_name"`
	LastShown        string `yaml:"last_shown"`
	Format           string `yaml:"format"`
	RegionFilter     string `yaml:"region_filter"`
	RegionLabels     string `yaml:"region_labels"`
	Creative         string `yaml:"creative"`
	CreativeFallback string `yaml:"creative_fallback"`
	CreativeFrame    string `yaml:"creative_frame"`
	Next             string `yaml:"next"`
}

// Media selectors and patterns drive frame extraction.
type Media struct {
	Image      string   `yaml:"image"`
	Video      string   `yaml:"video"`
	Background []string `yaml:"background"`
	// VideoHosts are URL substrings of frames that embed a hosted video
	// player rather than ad markup.
	VideoHosts []string `yaml:"video_hosts"`
	// AdFrames are URL prefixes of frames that render ad content.
	AdFrames []string `yaml:"ad_frames"`
}

// Default returns the built-in selectors.
func Default() Set {
	return Set{
		Listing: Listing{
			SearchInput:     ".search-input-searchable-center input",
			Suggestions:     ".search-suggestions-wrapper",
			FirstSuggestion: ".search-suggestions-wrapper material-select-item:first-child",
			Grid:            "creative-grid",
			Anchor:          "creative-preview > a",
			Thumbnail:       "img",
			LoadMore:        ".grid-expansion-button",
			AdvertiserName:  ".advertiser-name",
			ResponseMatch:   "SearchService/SearchCreatives",
		},
		Detail: Detail{
			AdvertiserName:   ".advertiser-name > a",
			LastShown:        ".properties .property:first-child",
			Format:           ".properties .property:nth-child(2)",
			RegionFilter:     "creative-region-filter",
			RegionLabels:     ".region-select-dropdown .label",
			Creative:         "creative.has-variation",
			CreativeFallback: "creative",
			CreativeFrame:    "creative iframe",
			Next:             ".right-arrow-container",
		},
		Media: Media{
			Image:      "img",
			Video:      "video",
			Background: []string{"[style*='background-image']", "div[class*='image']", ".bg-image"},
			VideoHosts: []string{"youtube.com/embed", "youtube-nocookie.com/embed", "player.vimeo.com/video"},
			AdFrames: []string{
				"https://tpc.googlesyndication.com/archive/sadbundle",
				"https://adstransparency.google.com/adframe",
			},
		},
	}
}

// Load reads path and fills every empty field from Default. An empty path
// returns the defaults.
func Load(path string) (Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, eris.Wrapf(err, "selectors: read %s", path)
	}
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Set{}, eris.Wrapf(err, "selectors: parse %s", path)
	}
	s.fill(Default())
	return s, nil
}

func (s *Set) fill(d Set) {
	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	list := func(dst *[]string, def []string) {
		if len(*dst) == 0 {
			*dst = def
		}
	}

	str(&s.Listing.SearchInput, d.Listing.SearchInput)
	str(&s.Listing.Suggestions, d.Listing.Suggestions)
	str(&s.Listing.FirstSuggestion, d.Listing.FirstSuggestion)
	str(&s.Listing.Grid, d.Listing.Grid)
	str(&s.Listing.Anchor, d.Listing.Anchor)
	str(&s.Listing.Thumbnail, d.Listing.Thumbnail)
	str(&s.Listing.LoadMore, d.Listing.LoadMore)
	str(&s.Listing.AdvertiserName, d.Listing.AdvertiserName)
	str(&s.Listing.ResponseMatch, d.Listing.ResponseMatch)

	str(&s.Detail.AdvertiserName, d.Detail.AdvertiserName)
	str(&s.Detail.LastShown, d.Detail.LastShown)
	str(&s.Detail.Format, d.Detail.Format)
	str(&s.Detail.RegionFilter, d.Detail.RegionFilter)
	str(&s.Detail.RegionLabels, d.Detail.RegionLabels)
	str(&s.Detail.Creative, d.Detail.Creative)
	str(&s.Detail.CreativeFallback, d.Detail.CreativeFallback)
	str(&s.Detail.CreativeFrame, d.Detail.CreativeFrame)
	str(&s.Detail.Next, d.Detail.Next)

	str(&s.Media.Image, d.Media.Image)
	str(&s.Media.Video, d.Media.Video)
	list(&s.Media.Background, d.Media.Background)
	list(&s.Media.VideoHosts, d.Media.VideoHosts)
	list(&s.Media.AdFrames, d.Media.AdFrames)
}
