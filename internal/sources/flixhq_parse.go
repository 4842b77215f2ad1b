package sources

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type flixTitle struct {
	Name string
	Path string // e.g. "movie/watch-the-exorcist-75043"
	Show bool
	Year int
}

type flixItem struct {
	Number int
	ID     string
}

type flixServer struct {
	Name string // lower-cased, without the "Server " prefix
	ID   string
}

var (
	reEpisodeNumber = regexp.MustCompile(`(?i)(?:eps|episode)\s*(\d+)`)
	reTrailingNum   = regexp.MustCompile(`(\d+)\s*$`)
)

// parseSearchResults extracts result cards. Titles are taken as DOM text,
// never as markup.
func parseSearchResults(doc *goquery.Document) []flixTitle {
	var out []flixTitle
	doc.Find(".film_list-wrap .flw-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".film-name a")
		name := strings.TrimSpace(link.AttrOr("title", link.Text()))
		href := link.AttrOr("href", "")
		if name == "" || href == "" {
			return
		}

		t := flixTitle{
			Name: name,
			Path: contentPath(href),
			Show: strings.Contains(href, "/tv/"),
		}
		s.Find(".fd-infor span").Each(func(_ int, span *goquery.Selection) {
			text := strings.TrimSpace(span.Text())
			if y, err := strconv.Atoi(text); err == nil && len(text) == 4 {
				t.Year = y
			}
		})
		out = append(out, t)
	})
	return out
}

// parseLastPage returns the highest page number linked from the pager, or 1.
func parseLastPage(doc *goquery.Document) int {
	last := 1
	doc.Find(".pagination a").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		_, page, ok := strings.Cut(href, "page=")
		if !ok {
			return
		}
		if n, err := strconv.Atoi(page); err == nil && n > last {
			last = n
		}
	})
	return last
}

func parseSeasons(doc *goquery.Document) []flixItem {
	var out []flixItem
	doc.Find(".dropdown-menu-model .dropdown-item").Each(func(_ int, s *goquery.Selection) {
		if !s.Is("a") {
			s = s.Find("a").First()
		}
		id := s.AttrOr("data-id", "")
		if id == "" {
			return
		}
		n := 0
		if m := reTrailingNum.FindStringSubmatch(strings.TrimSpace(s.Text())); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		out = append(out, flixItem{Number: n, ID: id})
	})
	return out
}

func parseEpisodes(doc *goquery.Document) []flixItem {
	var out []flixItem
	doc.Find(".nav-item a[data-id]").Each(func(i int, s *goquery.Selection) {
		label := s.AttrOr("title", "") + " " + s.Text()
		n := i + 1
		if m := reEpisodeNumber.FindStringSubmatch(label); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		out = append(out, flixItem{Number: n, ID: s.AttrOr("data-id", "")})
	})
	return out
}

// parseServers reads server links. Movie pages carry data-linkid, episode
// pages data-id.
func parseServers(doc *goquery.Document) []flixServer {
	var out []flixServer
	doc.Find("a.link-item, .server-item a").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("data-linkid")
		if !ok {
			id, ok = s.Attr("data-id")
		}
		if !ok || id == "" {
			return
		}
		name := strings.TrimSpace(s.Text())
		if name == "" {
			name = s.AttrOr("title", "")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.TrimSpace(strings.TrimPrefix(name, "server"))
		out = append(out, flixServer{Name: name, ID: id})
	})
	return out
}

// contentPath strips the leading slash and query: "/movie/x-1?a" -> "movie/x-1".
func contentPath(href string) string {
	href, _, _ = strings.Cut(href, "?")
	if i := strings.Index(href, "://"); i >= 0 {
		if j := strings.Index(href[i+3:], "/"); j >= 0 {
			href = href[i+3+j:]
		}
	}
	return strings.TrimPrefix(href, "/")
}

// numericID extracts the trailing numeric id: "movie/watch-x-75043" -> "75043".
func numericID(p string) string {
	i := strings.LastIndex(p, "-")
	if i < 0 {
		return ""
	}
	if _, err := strconv.Atoi(p[i+1:]); err != nil {
		return ""
	}
	return p[i+1:]
}
