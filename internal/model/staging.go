package model

// StagedCreative is the partial creative shell captured on a listing page
// and completed later by the detail visit.
type StagedCreative struct {
	Code           string `json:"code"`
	AdvertiserCode string `json:"advertiser_code,omitempty"`
	AdvertiserName string `json:"advertiser_name,omitempty"`
	Format         Format `json:"format,omitempty"`
	Link           string `json:"link,omitempty"`
}

// Overlay applies the shell onto c for every field the detail visit left
// empty. Detail observations always win.
func (s *StagedCreative) Overlay(c *Creative) {
	if s == nil || c == nil {
		return
	}
	if c.Code == "" {
		c.Code = s.Code
	}
	if c.Advertiser.Code == "" {
		c.Advertiser.Code = s.AdvertiserCode
	}
	if c.Advertiser.Name == "" {
		c.Advertiser.Name = s.AdvertiserName
	}
	if !c.Format.Valid() && s.Format.Valid() {
		c.Format = s.Format
	}
	if c.Link == "" {
		c.Link = s.Link
	}
}
