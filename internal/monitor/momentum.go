package monitor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/megobari/megobari/internal/store"
)

var (
	starsRE     = regexp.MustCompile(`\*\*Stars:\*\*\s*([\d,]+)`)
	releaseRE   = regexp.MustCompile(`###\s+(.+?)\s+\((\d{4}-\d{2}-\d{2})\)`)
	isoDateRE   = regexp.MustCompile(`\b(20\d{2}[-/]\d{1,2}[-/]\d{1,2})\b`)
	monthDateRE = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|` +
		`September|October|November|December)\s+\d{1,2},?\s+20\d{2}\b`)
)

// releaseInfo is one GitHub release extracted from a repo snapshot.
type releaseInfo struct {
	Name string
	Date string
}

// momentumMetrics is an entity's activity signal, derived by scanning its
// resources' latest snapshots for stars, commits, releases, and blog
// dates.
type momentumMetrics struct {
	GithubStars   int
	RecentCommits int
	Releases      []releaseInfo
	BlogDates     []string
	Score         int
}

// computeMomentum analyzes an entity's GitHub repos (commits, releases,
// stars) and blog freshness to produce a simple 0-100 activity score.
func computeMomentum(resources []*store.MonitorResource, latestByResource map[int64]*store.MonitorSnapshot, digestByResource map[int64]string, entityID int64) *momentumMetrics {
	m := &momentumMetrics{}

	for _, resource := range resources {
		if resource.EntityID != entityID {
			continue
		}
		snap, ok := latestByResource[resource.ID]
		if !ok || strings.TrimSpace(snap.ContentMarkdown) == "" {
			continue
		}
		content := snap.ContentMarkdown

		switch resource.ResourceType {
		case "repo":
			if match := starsRE.FindStringSubmatch(content); match != nil {
				if n, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", "")); err == nil {
					m.GithubStars += n
				}
			}
			m.RecentCommits += strings.Count(content, "- `")
			for _, rm := range releaseRE.FindAllStringSubmatch(content, -1) {
				m.Releases = append(m.Releases, releaseInfo{Name: rm[1], Date: rm[2]})
			}

		case "blog":
			digest := digestByResource[resource.ID]
			for _, dm := range isoDateRE.FindAllString(digest, -1) {
				m.BlogDates = append(m.BlogDates, dm)
			}
			for _, dm := range monthDateRE.FindAllString(digest, -1) {
				m.BlogDates = append(m.BlogDates, dm)
			}
		}
	}

	score := 0
	if m.GithubStars > 1000 {
		score += 20
	} else if m.GithubStars > 100 {
		score += 10
	}
	if m.RecentCommits >= 10 {
		score += 25
	} else if m.RecentCommits >= 5 {
		score += 15
	}
	if len(m.Releases) >= 3 {
		score += 25
	} else if len(m.Releases) >= 1 {
		score += 15
	}
	if len(m.BlogDates) > 0 {
		score += 20
	}
	for _, rel := range m.Releases {
		if strings.HasPrefix(rel.Date, "2026") {
			score += 10
			break
		}
	}
	if score > 100 {
		score = 100
	}

	if len(m.BlogDates) > 5 {
		m.BlogDates = m.BlogDates[:5]
	}
	m.Score = score
	return m
}
