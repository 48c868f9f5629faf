package listing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the tracker's listing page.
const (
	rowSelector       = "table.torrents > tbody > tr"
	cellSelector      = "td.rowfollow"
	userPanelSelector = "#info_block .navbar-user-data"
	userNameSelector  = ".nowrap"

	// Markers delimiting the stats section of the user panel.
	userStatsStart = "等级"
	userStatsEnd   = "当前活动"
)

var (
	bracketedText = regexp.MustCompile(`\[[^\[]*\]`)
	spacedColon   = regexp.MustCompile(` *[:：] *`)
)

// ReadRows reduces every listing row in doc to a Row. The first data cell of
// each row is a layout column and is dropped; the remaining cells are
// category, primary info, comments, age, size, seeders, leechers, finished.
func ReadRows(doc *goquery.Document) []Row {
	var rows []Row
	doc.Find(rowSelector).Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, readRow(tr))
	})
	return rows
}

func readRow(tr *goquery.Selection) Row {
	cells := tr.ChildrenFiltered(cellSelector)
	if cells.Length() > 0 {
		cells = cells.Slice(1, cells.Length())
	}

	row := Row{
		Cells:    cells.Length(),
		RowClass: firstClass(tr),
	}
	if row.Cells < MinCells {
		return row
	}

	row.Category = strings.TrimSpace(cells.Eq(0).Find("a").First().Text())

	main := cells.Eq(1)
	main.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		row.Icons = append(row.Icons, Icon{Src: src, Class: firstClass(img)})
	})
	main.Find("span > span").Each(func(_ int, span *goquery.Selection) {
		if class := firstClass(span); class != "" {
			row.LabelClasses = append(row.LabelClasses, class)
		}
	})

	link := primaryCell(main).Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		return idPattern.MatchString(href)
	}).First()
	row.Href, _ = link.Attr("href")
	row.Title, _ = link.Attr("title")
	if strings.TrimSpace(row.Title) == "" {
		row.Title = strings.Join(strings.Fields(link.Text()), " ")
	}

	row.Size = cells.Eq(4).Text()
	row.Seeders = cells.Eq(5).Text()
	row.Leechers = cells.Eq(6).Text()
	row.Finished = cells.Eq(7).Text()

	return row
}

// primaryCell returns the nested cell holding the title link. Pinned rows
// carry a leading cell with a marker block, which is skipped.
func primaryCell(main *goquery.Selection) *goquery.Selection {
	inner := main.Find("table td")
	if inner.Length() == 0 {
		return main
	}
	if inner.First().Find("div").Length() > 0 && inner.Length() > 1 {
		return inner.Eq(1)
	}
	return inner.First()
}

func firstClass(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// UserInfo is the signed-in user's panel as shown on every page.
type UserInfo struct {
	Name  string
	Stats string
}

// ReadUserPanel extracts the user panel. A missing panel means the page no
// longer has the expected shape and returns ErrPageShapeChanged.
func ReadUserPanel(doc *goquery.Document) (UserInfo, error) {
	panel := doc.Find(userPanelSelector).First()
	if panel.Length() == 0 {
		return UserInfo{}, fmt.Errorf("%w: user panel not found", ErrPageShapeChanged)
	}

	text := panel.Text()
	start := strings.Index(text, userStatsStart)
	end := strings.Index(text, userStatsEnd)
	if start == -1 || end == -1 || end < start {
		return UserInfo{}, fmt.Errorf("%w: user stats not found", ErrPageShapeChanged)
	}

	stats := text[start:end]
	stats = bracketedText.ReplaceAllString(stats, "")
	stats = spacedColon.ReplaceAllString(stats, "：")
	stats = strings.Join(strings.Fields(stats), " ")

	return UserInfo{
		Name:  strings.TrimSpace(panel.Find(userNameSelector).First().Text()),
		Stats: stats,
	}, nil
}
