package monitor

import (
	"strings"
	"testing"

	"github.com/megobari/megobari/internal/store"
)

func TestComputeMomentumScoresRepoActivity(t *testing.T) {
	resources := []*store.MonitorResource{
		{ID: 1, EntityID: 1, ResourceType: "repo"},
	}
	content := "# acme/widgets\n\n**Stars:** 2,500\n**Forks:** 100\n\n" +
		"## Recent Releases\n\n### v2.0.0 (2026-01-15)\nMajor release\n\n### v1.9.0 (2025-11-01)\nMinor release\n\n### v1.8.0 (2025-09-01)\nPatch\n\n" +
		"## Recent Commits\n- `abc1234` (2026-01-10) fix bug\n- `def5678` (2026-01-09) add feature\n" +
		strings.Repeat("- `aaaaaaa` (2026-01-01) commit\n", 10)
	latest := map[int64]*store.MonitorSnapshot{
		1: {ContentMarkdown: content},
	}

	m := computeMomentum(resources, latest, map[int64]string{}, 1)

	if m.GithubStars != 2500 {
		t.Errorf("expected 2500 stars, got %d", m.GithubStars)
	}
	if len(m.Releases) != 3 {
		t.Errorf("expected 3 releases, got %d", len(m.Releases))
	}
	if m.Score != 80 {
		t.Errorf("expected score 80 (stars+commits+releases+2026 bonus), got %d", m.Score)
	}
}

func TestComputeMomentumBlogDatesContributeToScore(t *testing.T) {
	resources := []*store.MonitorResource{
		{ID: 1, EntityID: 1, ResourceType: "blog"},
	}
	latest := map[int64]*store.MonitorSnapshot{
		1: {ContentMarkdown: "some blog content"},
	}
	digests := map[int64]string{
		1: "Acme published a post on 2026-01-10 about new features.",
	}

	m := computeMomentum(resources, latest, digests, 1)

	if len(m.BlogDates) != 1 {
		t.Fatalf("expected one extracted blog date, got %d", len(m.BlogDates))
	}
	if m.Score != 20 {
		t.Errorf("expected score 20 from blog activity alone, got %d", m.Score)
	}
}

func TestComputeMomentumZeroForQuietEntity(t *testing.T) {
	resources := []*store.MonitorResource{
		{ID: 1, EntityID: 1, ResourceType: "pricing"},
	}
	latest := map[int64]*store.MonitorSnapshot{
		1: {ContentMarkdown: "Our pricing hasn't changed."},
	}

	m := computeMomentum(resources, latest, map[int64]string{}, 1)
	if m.Score != 0 {
		t.Errorf("expected score 0, got %d", m.Score)
	}
}
