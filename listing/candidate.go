// Package listing turns the tracker's promotional listing into Candidate
// records.
package listing

import "github.com/pevans/promobot/capacity"

// Promotion is the canonical name of a site-granted incentive.
type Promotion string

const (
	PromotionNone               Promotion = ""
	PromotionFree               Promotion = "free"
	PromotionDoubleUpload       Promotion = "double-upload"
	PromotionFreeDoubleUpload   Promotion = "free+double-upload"
	PromotionHalfDownload       Promotion = "half-download"
	PromotionHalfDownloadDouble Promotion = "half-download+double-upload"
	PromotionThirtyPercent      Promotion = "thirty-percent-download"
)

// promotionMarkers maps the site's highlight, label, and icon class names to
// promotions. Row highlights use the name with a "_bg" suffix and icons use a
// "pro_" prefix.
var promotionMarkers = map[string]Promotion{
	// highlight & label
	"free":              PromotionFree,
	"twoup":             PromotionDoubleUpload,
	"twoupfree":         PromotionFreeDoubleUpload,
	"halfdown":          PromotionHalfDownload,
	"twouphalfdown":     PromotionHalfDownloadDouble,
	"thirtypercentdown": PromotionThirtyPercent,
	// icon
	"2up":          PromotionDoubleUpload,
	"free2up":      PromotionFreeDoubleUpload,
	"50pctdown":    PromotionHalfDownload,
	"50pctdown2up": PromotionHalfDownloadDouble,
	"30pctdown":    PromotionThirtyPercent,
}

// ParsePromotion returns the promotion with the given canonical name.
func ParsePromotion(name string) (Promotion, bool) {
	for _, p := range promotionMarkers {
		if string(p) == name {
			return p, true
		}
	}
	return PromotionNone, false
}

// categories maps the site's localized category labels to canonical tags.
var categories = map[string]string{
	"电影": "movie",
	"剧集": "episode",
	"动漫": "anime",
	"音乐": "music",
	"综艺": "show",
	"游戏": "game",
	"软件": "software",
	"资料": "material",
	"体育": "sport",
	"记录": "documentary",
}

// CategoryOther is used for labels with no known mapping.
const CategoryOther = "other"

// Category maps a localized category label to its canonical tag.
func Category(label string) string {
	if c, ok := categories[label]; ok {
		return c
	}
	return CategoryOther
}

// Unknown marks a peer count whose cell was not a plain number.
const Unknown = -1

// Candidate is one entry of the promotional listing.
type Candidate struct {
	ID              string
	Title           string
	Category        string
	Promotion       Promotion
	AlreadySeeding  bool
	AlreadyFinished bool
	Seeders         int
	Leechers        int
	Finished        int
	SizeText        string
}

// SizeBytes converts SizeText, returning 0 when the size is unknown.
func (c Candidate) SizeBytes() int64 {
	return capacity.ParseSize(c.SizeText)
}
