package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/turnengine"
)

const (
	maxReportDataChars  = 80000
	reportExcerptChars  = 2000
	changeTrackingChars = 3000
)

// excerptLadder is tried in order when the assembled report payload
// exceeds maxReportDataChars, shrinking the per-resource excerpt until it
// fits.
var excerptLadder = []int{1200, 800, 500, 300}

// GenerateReport assembles a market-intelligence report for every Entity
// in scope (all entities if topicName is empty), computes per-entity
// momentum scores, and asks the Agent to synthesize a structured
// markdown report. The result is saved to <reportsDir>/<topic-slug>.md.
func (e *Engine) GenerateReport(ctx context.Context, topicName string) (string, error) {
	var topicID int64
	topicDisplay := "All Topics"
	if topicName != "" {
		topic, err := e.store.GetMonitorTopic(ctx, topicName)
		if err != nil {
			return "", fmt.Errorf("load topic: %w", err)
		}
		if topic == nil {
			return fmt.Sprintf("Topic '%s' not found.", topicName), nil
		}
		topicID = topic.ID
		topicDisplay = topic.Name
	} else {
		topics, err := e.store.ListMonitorTopics(ctx, false)
		if err != nil {
			return "", fmt.Errorf("list topics: %w", err)
		}
		if len(topics) > 0 {
			names := make([]string, len(topics))
			for i, t := range topics {
				names[i] = t.Name
			}
			topicDisplay = strings.Join(names, ", ")
		}
	}

	entities, err := e.store.ListMonitorEntities(ctx, topicID, false)
	if err != nil {
		return "", fmt.Errorf("list entities: %w", err)
	}
	entityMap := make(map[int64]*store.MonitorEntity, len(entities))
	for _, ent := range entities {
		entityMap[ent.ID] = ent
	}

	resources, err := e.store.ListMonitorResources(ctx, 0, topicID, false)
	if err != nil {
		return "", fmt.Errorf("list resources: %w", err)
	}
	if len(resources) == 0 {
		return "No resources to report on.", nil
	}

	allDigests, err := e.store.ListMonitorDigests(ctx, topicID, 0, 0, 500)
	if err != nil {
		return "", fmt.Errorf("list digests: %w", err)
	}
	digestByResource := make(map[int64]string)
	for _, d := range allDigests {
		if _, ok := digestByResource[d.ResourceID]; !ok {
			digestByResource[d.ResourceID] = d.Summary
		}
	}

	latestByResource := make(map[int64]*store.MonitorSnapshot)
	for _, resource := range resources {
		snap, err := e.store.LatestMonitorSnapshot(ctx, resource.ID)
		if err != nil {
			return "", fmt.Errorf("load latest snapshot: %w", err)
		}
		if snap == nil || strings.TrimSpace(snap.ContentMarkdown) == "" {
			continue
		}
		latestByResource[resource.ID] = snap
	}

	entityBlocks := make(map[int64][]string)
	for _, resource := range resources {
		snap, ok := latestByResource[resource.ID]
		if !ok {
			continue
		}
		entityBlocks[resource.EntityID] = append(entityBlocks[resource.EntityID], resourceBlock(resource.Name, resource.ResourceType, resource.URL, digestByResource[resource.ID], snap.ContentMarkdown, reportExcerptChars))
	}

	blockedEntities := make(map[int64]*store.MonitorEntity, len(entityBlocks))
	for eid := range entityBlocks {
		if ent, ok := entityMap[eid]; ok {
			blockedEntities[eid] = ent
		}
	}
	sortedEIDs := sortEntityIDsByName(blockedEntities)

	buildSections := func() string {
		var sections []string
		for _, eid := range sortedEIDs {
			ent := entityMap[eid]
			header := "## " + ent.Name
			if ent.URL != "" {
				header += fmt.Sprintf(" (%s)", ent.URL)
			}
			sections = append(sections, header+"\n"+strings.Join(entityBlocks[eid], ""))
		}
		return strings.Join(sections, "\n---\n")
	}

	allData := buildSections()
	if len(allData) > maxReportDataChars {
		for _, limit := range excerptLadder {
			for _, resource := range resources {
				snap, ok := latestByResource[resource.ID]
				if !ok {
					continue
				}
				newBlock := resourceBlock(resource.Name, resource.ResourceType, resource.URL, digestByResource[resource.ID], snap.ContentMarkdown, limit)
				blocks := entityBlocks[resource.EntityID]
				for i, blk := range blocks {
					if strings.HasPrefix(blk, "### "+resource.Name+" ") {
						blocks[i] = newBlock
						break
					}
				}
			}
			allData = buildSections()
			if len(allData) <= maxReportDataChars {
				break
			}
		}
	}

	var momentumLines []string
	for _, eid := range sortedEIDs {
		ent := entityMap[eid]
		metrics := computeMomentum(resources, latestByResource, digestByResource, eid)
		momentumLines = append(momentumLines, formatMomentumLine(ent.Name, metrics))
	}
	momentumSection := strings.Join(momentumLines, "\n")

	changeTracking := ""
	if previous, err := e.loadReport(topicName); err == nil && len(previous) > 500 {
		changeTracking = "\n\n--- PREVIOUS REPORT (for change tracking) ---\n" +
			"Compare against this previous report. In section 2, clearly mark NEW " +
			"findings that were NOT in the previous report with a '[NEW]' prefix. " +
			"If a company's pricing, features, or strategy changed, call it out.\n\n" +
			truncateChars(previous, changeTrackingChars) + "\n[... previous report truncated ...]\n"
	}

	prompt := buildReportPrompt(len(entities), topicDisplay, momentumSection, allData, changeTracking)

	resp, err := e.runner.RunAdHoc(ctx, "monitor:report", e.cwd, prompt, turnengine.WithBypassPermissions(), turnengine.WithMaxTurns(3))
	if err != nil {
		e.log.Error().Err(err).Str("topic", topicDisplay).Msg("failed to generate report")
		return "Report generation failed. Check logs.", nil
	}

	report := strings.TrimSpace(resp)
	if err := e.saveReport(topicDisplay, report); err != nil {
		e.log.Warn().Err(err).Msg("failed to save report")
	}
	return report, nil
}

func resourceBlock(name, resourceType, url, digestText, content string, excerptLimit int) string {
	if resourceType == "blog" && digestText != "" {
		return fmt.Sprintf("### %s (%s) — %s\n**AI Summary:** %s\n\n**Raw excerpt:**\n%s\n",
			name, resourceType, url, digestText, truncateChars(content, excerptLimit))
	}
	return fmt.Sprintf("### %s (%s) — %s\n%s\n", name, resourceType, url, truncateChars(content, excerptLimit))
}

func formatMomentumLine(entityName string, m *momentumMetrics) string {
	label := "Low"
	if m.Score >= 60 {
		label = "High"
	} else if m.Score >= 30 {
		label = "Medium"
	}
	parts := []string{fmt.Sprintf("**%s**: %s (%d/100)", entityName, label, m.Score)}
	if m.GithubStars > 0 {
		parts = append(parts, fmt.Sprintf("%s stars", thousands(m.GithubStars)))
	}
	if m.RecentCommits > 0 {
		parts = append(parts, fmt.Sprintf("%d recent commits", m.RecentCommits))
	}
	if len(m.Releases) > 0 {
		latest := m.Releases[0]
		parts = append(parts, fmt.Sprintf("latest release: %s (%s)", latest.Name, latest.Date))
	}
	return strings.Join(parts, " | ")
}

func buildReportPrompt(entityCount int, topicDisplay, momentumSection, allData, changeTracking string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a market intelligence analyst. Below is scraped content from "+
		"%d companies in the '%s' space — their websites, blogs, pricing pages, and "+
		"GitHub repositories.\n\n", entityCount, topicDisplay)
	b.WriteString("Write a comprehensive market intelligence report in markdown. Include:\n\n")
	b.WriteString("1. **Executive Summary** — 3-5 bullet points of the most important findings\n")
	b.WriteString("2. **Key Highlights & Recent News** — For each notable blog post, release, " +
		"or announcement, write a short paragraph (2-3 sentences) explaining what was " +
		"published, the key insight or takeaway, and why it matters competitively. " +
		"Group by company. Include source URLs as markdown links. " +
		"Do NOT just list blog titles in a table — extract and explain the actual " +
		"content and insights from each article. If a previous report is provided " +
		"below, prefix genuinely new findings with **[NEW]**.\n")
	b.WriteString("3. **Momentum & Activity Rankings** — Rank ALL companies by activity level " +
		"using the momentum scores provided below. Show a table with columns: " +
		"Company, Score, GitHub Stars, Recent Releases, Blog Activity, Verdict. " +
		"Highlight who is accelerating vs stagnating.\n")
	b.WriteString("4. **Pricing Landscape** — a markdown table comparing pricing models, " +
		"tiers, free plans. Link each company name to their pricing page URL.\n")
	b.WriteString("5. **Company Profiles** — for each company, write 2-4 sentences covering: " +
		"what they do, recent news/activity, pricing model, and anything notable. " +
		"Link the company name in the heading to their main website URL. " +
		"When mentioning blog posts or specific pages, include the URL as a link.\n")
	b.WriteString("6. **Open Source Landscape** — Dedicated section analyzing OSS projects: " +
		"compare GitHub repos by stars, commit activity, release cadence, language, " +
		"and license. Highlight which OSS tools are gaining traction and what " +
		"features they've added recently.\n")
	b.WriteString("7. **Competitive Gap Analysis** — Compare the companies in this space " +
		"against each other by category (established players, fast-growing challengers, " +
		"open source alternatives). Identify who is catching up, who leads on which " +
		"capability, and where there is a gap no one has filled yet.\n")
	b.WriteString("8. **Market Observations** — trends, patterns, competitive dynamics\n")
	b.WriteString("9. **Action Items & Product Opportunities** — Based on the competitive gaps, " +
		"emerging features, and momentum data above, recommend 5-10 specific product " +
		"features or strategies worth pursuing. For each: what it is, which companies " +
		"already have it (with links), why it matters, and what gap it fills. Be " +
		"concrete. **Sort action items by priority — High first, then Medium, then " +
		"Low.** Within each priority level, order by impact.\n\n")
	b.WriteString("IMPORTANT: Every fact must link back to its source URL from the raw data. " +
		"The URLs are provided next to each resource name in the data. Use markdown " +
		"links like [text](url) throughout the report.\n\n")
	b.WriteString("Be specific. Extract actual facts, numbers, dates, product names. " +
		"Skip companies where the content is empty or just a 404 page. " +
		"Write in a professional but concise style.\n\n")
	b.WriteString("CRITICAL: Output the full report as plain text in your response. " +
		"Do NOT use any tools. Do NOT write to files. Just output the markdown.\n\n")
	fmt.Fprintf(&b, "--- MOMENTUM SCORES ---\n\n%s\n\n", momentumSection)
	fmt.Fprintf(&b, "--- RAW DATA ---\n\n%s", allData)
	b.WriteString(changeTracking)
	return b.String()
}

// reportSlugRE keeps saved report filenames filesystem-safe.
var reportSlugRE = regexp.MustCompile(`[^a-z0-9_-]+`)

func reportKey(topicName string) string {
	slug := strings.ToLower(strings.ReplaceAll(topicName, " ", "_"))
	return reportSlugRE.ReplaceAllString(slug, "")
}

func (e *Engine) saveReport(topicName, content string) error {
	if err := os.MkdirAll(e.reportsDir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(e.reportsDir, reportKey(topicName)+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	e.log.Info().Str("path", path).Int("chars", len(content)).Msg("saved monitor report")
	return nil
}

// LoadReport returns a previously saved report from disk, or the first
// available report (alphabetically) if topicName is empty, for the
// Dashboard API's read-only report route.
func (e *Engine) LoadReport(topicName string) (string, error) {
	return e.loadReport(topicName)
}

// loadReport returns a previously saved report from disk, or the first
// available report (alphabetically) if topicName is empty.
func (e *Engine) loadReport(topicName string) (string, error) {
	if topicName != "" {
		path := filepath.Join(e.reportsDir, reportKey(topicName)+".md")
		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("read report: %w", err)
		}
		return string(content), nil
	}

	matches, err := filepath.Glob(filepath.Join(e.reportsDir, "*.md"))
	if err != nil {
		return "", fmt.Errorf("glob reports dir: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	content, err := os.ReadFile(matches[0])
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return string(content), nil
}
