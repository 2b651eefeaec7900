package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

const (
	pageTimeout     = 30 * time.Second
	domSettleDelay  = 2 * time.Second
	maxBlogArticles = 10
	minArticleTitle = 20
)

// skipPathRE excludes navigational/boilerplate subpaths from blog article
// link extraction.
var skipPathRE = regexp.MustCompile(`(?i)/(tag|category|page|author|feed|wp-|legal|contact|faq|about|pricing|solution|clients|testimonial|video|industries|case-stud|fr/|de/|es/|it/|pt/)`)

// Fetcher renders one Resource's current content to markdown. Dispatch is
// by resource_type: repo URLs hit the GitHub API, blog URLs get a deep
// crawl of the index plus its recent articles, everything else is a
// single-page render.
type Fetcher interface {
	Fetch(ctx context.Context, resourceType, rawURL string) (string, error)
}

// ChromeFetcher renders JS-heavy pages with headless Chrome and fetches
// GitHub repos through the REST API.
type ChromeFetcher struct {
	githubToken string
	httpClient  *http.Client
}

// NewChromeFetcher builds a Fetcher. githubToken may be empty, in which
// case GitHub API requests use the GITHUB_TOKEN environment variable, and
// go out unauthenticated (subject to the lower rate limit) if that is
// empty too.
func NewChromeFetcher(githubToken string) *ChromeFetcher {
	return &ChromeFetcher{
		githubToken: githubToken,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (f *ChromeFetcher) Fetch(ctx context.Context, resourceType, rawURL string) (string, error) {
	if resourceType == "repo" && strings.Contains(rawURL, "github.com") {
		return f.fetchGitHubRepo(ctx, rawURL)
	}
	if resourceType == "blog" {
		return f.fetchBlog(ctx, rawURL)
	}
	html, err := f.renderPage(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return htmlToMarkdown(html)
}

func (f *ChromeFetcher) renderPage(ctx context.Context, target string) (string, error) {
	browserCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, pageTimeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.Sleep(domSettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", target, err)
	}
	return html, nil
}

// fetchBlog crawls the blog index to markdown, extracts same-domain
// article links, and crawls up to maxBlogArticles of them, concatenating
// everything into one document.
func (f *ChromeFetcher) fetchBlog(ctx context.Context, indexURL string) (string, error) {
	indexHTML, err := f.renderPage(ctx, indexURL)
	if err != nil {
		return "", err
	}
	indexMD, err := htmlToMarkdown(indexHTML)
	if err != nil {
		return "", err
	}

	articleURLs, err := extractArticleLinks(indexHTML, indexURL)
	if err != nil || len(articleURLs) == 0 {
		return indexMD, nil
	}
	if len(articleURLs) > maxBlogArticles {
		articleURLs = articleURLs[:maxBlogArticles]
	}

	parts := []string{fmt.Sprintf("# Blog Index: %s\n\n%s\n\n---\n", indexURL, indexMD)}
	for _, articleURL := range articleURLs {
		artHTML, err := f.renderPage(ctx, articleURL)
		if err != nil {
			continue
		}
		artMD, err := htmlToMarkdown(artHTML)
		if err != nil || strings.TrimSpace(artMD) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("\n# Article: %s\n\n%s\n\n---\n", articleURL, strings.TrimSpace(artMD)))
	}
	return strings.Join(parts, "\n"), nil
}

func htmlToMarkdown(html string) (string, error) {
	out, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return out, nil
}

// extractArticleLinks finds candidate article URLs on a blog index page:
// same registrable domain, anchor text at least minArticleTitle chars, a
// hyphenated final path segment, and a path that doesn't match the
// navigational deny-list.
func extractArticleLinks(html, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	baseDomain := strings.TrimPrefix(base.Hostname(), "www.")
	trimmedPage := strings.TrimSuffix(pageURL, "/")

	var out []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		title := strings.TrimSpace(sel.Text())
		link, err := base.Parse(href)
		if err != nil || (link.Scheme != "http" && link.Scheme != "https") {
			return
		}
		clean := strings.TrimSuffix(link.String(), "/")
		if seen[clean] || clean == trimmedPage {
			return
		}
		if strings.TrimPrefix(link.Hostname(), "www.") != baseDomain {
			return
		}
		if skipPathRE.MatchString(link.Path) {
			return
		}
		if len(title) < minArticleTitle {
			return
		}
		segments := strings.Split(strings.Trim(link.Path, "/"), "/")
		slug := segments[len(segments)-1]
		if !strings.Contains(slug, "-") {
			return
		}
		seen[clean] = true
		out = append(out, clean)
	})
	return out, nil
}

type githubRepoInfo struct {
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	Language        string `json:"language"`
	License         *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	PushedAt        string `json:"pushed_at"`
	OpenIssuesCount int    `json:"open_issues_count"`
}

type githubRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	PublishedAt string `json:"published_at"`
	Body        string `json:"body"`
}

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// fetchGitHubRepo renders repo metadata, up to 5 recent releases, and up
// to 10 recent commits as a fixed markdown template.
func (f *ChromeFetcher) fetchGitHubRepo(ctx context.Context, rawURL string) (string, error) {
	owner, repo, ok := parseGitHubRepoURL(rawURL)
	if !ok {
		return "", nil
	}

	var info githubRepoInfo
	status, err := f.githubGet(ctx, fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, repo), &info)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return fmt.Sprintf("# %s/%s\n\nFailed to fetch (HTTP %d).", owner, repo, status), nil
	}

	var lines []string
	fullName := info.FullName
	if fullName == "" {
		fullName = owner + "/" + repo
	}
	description := info.Description
	if description == "" {
		description = "N/A"
	}
	language := info.Language
	if language == "" {
		language = "N/A"
	}
	license := "N/A"
	if info.License != nil && info.License.SPDXID != "" {
		license = info.License.SPDXID
	}
	pushedAt := info.PushedAt
	if pushedAt == "" {
		pushedAt = "N/A"
	}
	lines = append(lines,
		fmt.Sprintf("# %s", fullName),
		"",
		fmt.Sprintf("**Description:** %s", description),
		fmt.Sprintf("**Stars:** %s", thousands(info.StargazersCount)),
		fmt.Sprintf("**Forks:** %s", thousands(info.ForksCount)),
		fmt.Sprintf("**Language:** %s", language),
		fmt.Sprintf("**License:** %s", license),
		fmt.Sprintf("**Last pushed:** %s", pushedAt),
		fmt.Sprintf("**Open issues:** %s", thousands(info.OpenIssuesCount)),
		"",
	)

	var releases []githubRelease
	relStatus, err := f.githubGet(ctx, fmt.Sprintf("https://api.github.com/repos/%s/%s/releases?per_page=5", owner, repo), &releases)
	if err == nil && relStatus == http.StatusOK {
		if len(releases) > 0 {
			lines = append(lines, "## Recent Releases")
			for _, r := range releases {
				name := r.Name
				if name == "" {
					name = r.TagName
				}
				date := r.PublishedAt
				if len(date) > 10 {
					date = date[:10]
				}
				body := r.Body
				if len(body) > 500 {
					body = body[:500]
				}
				lines = append(lines, "", fmt.Sprintf("### %s (%s)", name, date))
				if body != "" {
					lines = append(lines, body)
				}
			}
		} else {
			lines = append(lines, "## Releases\nNo releases found (may use tags only).")
		}
	}

	var commits []githubCommit
	commitStatus, err := f.githubGet(ctx, fmt.Sprintf("https://api.github.com/repos/%s/%s/commits?per_page=10", owner, repo), &commits)
	if err == nil && commitStatus == http.StatusOK && len(commits) > 0 {
		lines = append(lines, "", "## Recent Commits")
		for _, c := range commits {
			sha := c.SHA
			if len(sha) > 7 {
				sha = sha[:7]
			}
			msg := strings.SplitN(c.Commit.Message, "\n", 2)[0]
			date := c.Commit.Author.Date
			if len(date) > 10 {
				date = date[:10]
			}
			lines = append(lines, fmt.Sprintf("- `%s` (%s) %s", sha, date, msg))
		}
	}

	return strings.Join(lines, "\n"), nil
}

func (f *ChromeFetcher) githubGet(ctx context.Context, apiURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	token := f.githubToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("github api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode github response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func parseGitHubRepoURL(rawURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func thousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
