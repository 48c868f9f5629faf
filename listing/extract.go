package listing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMissingField is returned when a row lacks the id or title needed
	// to acquire it. It aborts the whole batch.
	ErrMissingField = errors.New("listing row is missing a required field")

	// ErrPageShapeChanged is returned when page structure the bot depends on
	// is absent. It is fatal for the process.
	ErrPageShapeChanged = errors.New("listing page structure changed")
)

const (
	// MinCells is the number of data cells a torrent row must carry.
	MinCells = 8

	rowHighlightSuffix  = "_bg"
	iconPromotionPrefix = "pro_"

	seedingIcon  = "/pic/seeding.png"
	finishedIcon = "/pic/finished.png"
)

var idPattern = regexp.MustCompile(`id=(\d+)`)

// Icon is an image marker inside a row's primary cell.
type Icon struct {
	Src   string
	Class string // first class name, if any
}

// Row is one listing row with its markup already reduced to text and
// attributes.
type Row struct {
	Cells        int      // number of data cells found
	RowClass     string   // first class name of the row element
	Category     string   // category link text
	Icons        []Icon   // images in the primary cell
	LabelClasses []string // classes of nested label spans, in document order
	Href         string   // title link target
	Title        string   // title link title attribute
	Size         string
	Seeders      string
	Leechers     string
	Finished     string
}

// Extract converts rows to candidates in order. Rows with too few cells are
// skipped; a row without an id or title fails the batch with
// ErrMissingField.
func Extract(rows []Row) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(rows))
	for i, row := range rows {
		c, ok, err := ExtractRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// ExtractRow converts a single row. ok is false when the row is malformed
// and should be skipped.
func ExtractRow(row Row) (c Candidate, ok bool, err error) {
	if row.Cells < MinCells {
		return Candidate{}, false, nil
	}

	c = Candidate{
		Category: Category(strings.TrimSpace(row.Category)),
		SizeText: strings.Join(strings.Fields(row.Size), " "),
		Seeders:  count(row.Seeders),
		Leechers: count(row.Leechers),
		Finished: count(row.Finished),
	}

	for _, icon := range row.Icons {
		switch icon.Src {
		case seedingIcon:
			c.AlreadySeeding = true
		case finishedIcon:
			c.AlreadyFinished = true
		}
	}
	c.Promotion = resolvePromotion(row)

	m := idPattern.FindStringSubmatch(row.Href)
	if m == nil {
		return Candidate{}, false, fmt.Errorf("%w: no id in link %q", ErrMissingField, row.Href)
	}
	c.ID = m[1]

	c.Title = strings.TrimSpace(row.Title)
	if c.Title == "" {
		return Candidate{}, false, fmt.Errorf("%w: no title for id %s", ErrMissingField, c.ID)
	}

	return c, true, nil
}

// resolvePromotion checks the row highlight, then promotion icons, then
// nested labels. The first match wins.
func resolvePromotion(row Row) Promotion {
	if name, ok := strings.CutSuffix(row.RowClass, rowHighlightSuffix); ok {
		if p, ok := promotionMarkers[name]; ok {
			return p
		}
	}

	for _, icon := range row.Icons {
		name, ok := strings.CutPrefix(icon.Class, iconPromotionPrefix)
		if !ok {
			continue
		}
		if p, ok := promotionMarkers[name]; ok {
			return p
		}
	}

	for _, class := range row.LabelClasses {
		if p, ok := promotionMarkers[class]; ok {
			return p
		}
	}

	return PromotionNone
}

// count parses a peer count cell, returning Unknown unless the cell is a
// plain run of digits.
func count(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return Unknown
		}
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return Unknown
	}
	return n
}
