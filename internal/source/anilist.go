package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"trendbot/internal/media"
)

const anilistQuery = `query ($season: MediaSeason, $seasonYear: Int, $page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    media(season: $season, seasonYear: $seasonYear, type: ANIME, sort: POPULARITY_DESC, isAdult: false) {
      id
      title { romaji english }
      averageScore
      popularity
      status
      episodes
      genres
      coverImage { large }
      description(asHtml: false)
      siteUrl
    }
  }
}`

// anilistPerPage is fixed; Fetch(limit) truncates further.
const anilistPerPage = 10

type AniListOptions struct {
	Endpoint string
	// Season and SeasonYear pin the season; zero values follow the calendar.
	Season     string
	SeasonYear int
	// Now is the clock used to derive the season. Defaults to time.Now.
	Now func() time.Time
}

// AniList fetches the current-season anime list.
type AniList struct {
	c        *Client
	endpoint string
	season   string
	year     int
	now      func() time.Time
}

func NewAniList(c *Client, opts AniListOptions) *AniList {
	ep := strings.TrimSpace(opts.Endpoint)
	if ep == "" {
		ep = "https://graphql.anilist.co"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AniList{
		c:        c,
		endpoint: ep,
		season:   strings.ToUpper(strings.TrimSpace(opts.Season)),
		year:     opts.SeasonYear,
		now:      now,
	}
}

func (a *AniList) Name() string     { return "anilist" }
func (a *AniList) Kind() media.Kind { return media.KindAnime }

// SeasonFor returns the AniList season containing t. December belongs to the
// following year's WINTER season.
func SeasonFor(t time.Time) (string, int) {
	year := t.Year()
	switch t.Month() {
	case time.December:
		return "WINTER", year + 1
	case time.January, time.February:
		return "WINTER", year
	case time.March, time.April, time.May:
		return "SPRING", year
	case time.June, time.July, time.August:
		return "SUMMER", year
	default:
		return "FALL", year
	}
}

func (a *AniList) currentSeason() (string, int) {
	season, year := SeasonFor(a.now())
	if a.season != "" {
		season = a.season
	}
	if a.year > 0 {
		year = a.year
	}
	return season, year
}

type anilistResponse struct {
	Data struct {
		Page struct {
			Media []media.Raw `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *AniList) Fetch(ctx context.Context, limit int) ([]media.Item, error) {
	season, year := a.currentSeason()
	body := map[string]any{
		"query": anilistQuery,
		"variables": map[string]any{
			"season":     season,
			"seasonYear": year,
			"page":       1,
			"perPage":    anilistPerPage,
		},
	}
	var resp anilistResponse
	if err := a.c.PostJSON(ctx, a.endpoint, nil, body, &resp); err != nil {
		return nil, media.Unavailable(a.Name(), a.Kind(), err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, media.Unavailable(a.Name(), a.Kind(), fmt.Errorf("graphql: %s", strings.Join(msgs, "; ")))
	}

	rows := resp.Data.Page.Media
	items := make([]media.Item, 0, len(rows))
	for _, raw := range rows {
		if it, ok := anilistItem(raw); ok {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, media.Empty(a.Name(), a.Kind())
	}
	return capItems(items, limit), nil
}

func anilistItem(raw media.Raw) (media.Item, bool) {
	id, ok := raw.Int("id")
	if !ok {
		return media.Item{}, false
	}
	titles := media.Raw(asMap(raw["title"]))
	title := firstString(titles, "romaji", "english")

	it := media.NewItem(media.KindAnime, strconv.Itoa(id), title, raw)
	if v, ok := raw.Int("averageScore"); ok {
		it.Score = media.Float(float64(v))
	}
	it.ImageRef, _ = media.Raw(asMap(raw["coverImage"])).String("large")
	if desc, ok := raw.String("description"); ok {
		if text, err := htmlToText(desc); err == nil {
			it.Overview = text
		}
	}
	return it, true
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

var lineBreaks = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "<BR>", "\n")

// htmlToText flattens AniList descriptions, which carry <br> and <i> markup.
func htmlToText(s string) (string, error) {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(lineBreaks.Replace(s)))
	if err != nil {
		return "", err
	}
	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	text := strings.TrimSpace(strings.Join(out, "\n"))
	if text == "" {
		return "", errors.New("empty description")
	}
	return text, nil
}
