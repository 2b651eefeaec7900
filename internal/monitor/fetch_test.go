package monitor

import "testing"

func TestExtractArticleLinksFiltersNavigationalPaths(t *testing.T) {
	html := `
<html><body>
<a href="/blog/a-great-new-announcement-about-features">A great new announcement about features</a>
<a href="/blog/tag/engineering">Engineering</a>
<a href="/pricing">Pricing</a>
<a href="https://other-domain.example/blog/some-long-title-here">Some long title here</a>
<a href="/blog/short">short</a>
<a href="/blog/no-title-text"></a>
</body></html>`

	links, err := extractArticleLinks(html, "https://example.com/blog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected exactly one article link, got %d: %v", len(links), links)
	}
	want := "https://example.com/blog/a-great-new-announcement-about-features"
	if links[0] != want {
		t.Fatalf("expected %q, got %q", want, links[0])
	}
}

func TestExtractArticleLinksDedupes(t *testing.T) {
	html := `
<html><body>
<a href="/blog/a-great-new-announcement-about-features">A great new announcement about features</a>
<a href="/blog/a-great-new-announcement-about-features/">A great new announcement about features again</a>
</body></html>`

	links, err := extractArticleLinks(html, "https://example.com/blog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected deduped single link, got %d: %v", len(links), links)
	}
}

func TestParseGitHubRepoURL(t *testing.T) {
	owner, repo, ok := parseGitHubRepoURL("https://github.com/acme/widgets")
	if !ok || owner != "acme" || repo != "widgets" {
		t.Fatalf("got owner=%q repo=%q ok=%v", owner, repo, ok)
	}

	if _, _, ok := parseGitHubRepoURL("https://github.com/acme"); ok {
		t.Fatal("expected ok=false for a URL with no repo segment")
	}
}

func TestThousands(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		7:       "7",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-42000:  "-42,000",
	}
	for n, want := range cases {
		if got := thousands(n); got != want {
			t.Errorf("thousands(%d) = %q, want %q", n, got, want)
		}
	}
}
