package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	if err := s.migrate(ctx); err != nil {
		t.Fatalf("second migrate call should be a no-op: %v", err)
	}
}

func TestUserUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.UpsertUser(ctx, 42, "ada", "Ada", "Lovelace")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if u.TelegramID != 42 || u.Username != "ada" {
		t.Fatalf("unexpected user: %+v", u)
	}

	u2, err := s.UpsertUser(ctx, 42, "ada2", "Ada", "Lovelace")
	if err != nil {
		t.Fatalf("re-upsert user: %v", err)
	}
	if u2.ID != u.ID {
		t.Fatalf("expected same row on re-upsert, got id %d vs %d", u2.ID, u.ID)
	}
	if u2.Username != "ada2" {
		t.Fatalf("expected username updated, got %q", u2.Username)
	}
}

func TestMessageSummarizationFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		m, err := s.AddMessage(ctx, "default", "user", "hello", 0)
		if err != nil {
			t.Fatalf("add message: %v", err)
		}
		ids = append(ids, m.ID)
	}

	count, err := s.UnsummarizedCount(ctx, "default")
	if err != nil {
		t.Fatalf("count unsummarized: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	sum, err := s.CommitSummary(ctx, ConversationSummary{
		SessionName:  "default",
		Summary:      "talked about hellos",
		MessageCount: 3,
	}, ids)
	if err != nil {
		t.Fatalf("commit summary: %v", err)
	}
	if sum.ID == 0 {
		t.Fatal("expected summary to get an ID")
	}

	count, err = s.UnsummarizedCount(ctx, "default")
	if err != nil {
		t.Fatalf("count unsummarized after commit: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after summarizing = %d, want 0", count)
	}

	summaries, err := s.RecentSummaries(ctx, "default", 3)
	if err != nil {
		t.Fatalf("recent summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
}

func TestMemoryUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.SetMemory(ctx, 0, "preferences", "timezone", "UTC+4", nil); err != nil {
		t.Fatalf("set memory: %v", err)
	}
	if _, err := s.SetMemory(ctx, 0, "preferences", "timezone", "UTC+3", nil); err != nil {
		t.Fatalf("update memory: %v", err)
	}

	m, err := s.GetMemory(ctx, 0, "preferences", "timezone")
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if m == nil || m.Content != "UTC+3" {
		t.Fatalf("expected updated memory, got %+v", m)
	}

	list, err := s.ListMemories(ctx, 0, "", 10)
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(list))
	}

	deleted, err := s.DeleteMemory(ctx, 0, "preferences", "timezone")
	if err != nil {
		t.Fatalf("delete memory: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report true")
	}

	deleted, err = s.DeleteMemory(ctx, 0, "preferences", "timezone")
	if err != nil {
		t.Fatalf("delete missing memory: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report false")
	}
}

func TestCronJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job, err := s.AddCronJob(ctx, CronJob{
		Name:           "morning-digest",
		CronExpression: "0 8 * * *",
		Prompt:         "summarize overnight news",
		SessionName:    "default",
	})
	if err != nil {
		t.Fatalf("add cron job: %v", err)
	}
	if !job.Enabled {
		t.Fatal("expected new cron job to start enabled")
	}

	toggled, err := s.ToggleCronJob(ctx, "morning-digest", false)
	if err != nil {
		t.Fatalf("toggle cron job: %v", err)
	}
	if toggled.Enabled {
		t.Fatal("expected cron job to be disabled")
	}

	jobs, err := s.ListCronJobs(ctx, true)
	if err != nil {
		t.Fatalf("list enabled cron jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected 0 enabled jobs, got %d", len(jobs))
	}

	deleted, err := s.DeleteCronJob(ctx, "morning-digest")
	if err != nil {
		t.Fatalf("delete cron job: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report true")
	}
}

func TestMonitorPipelineTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	topic, err := s.AddMonitorTopic(ctx, "competitors", "")
	if err != nil {
		t.Fatalf("add topic: %v", err)
	}
	entity, err := s.AddMonitorEntity(ctx, MonitorEntity{TopicID: topic.ID, Name: "acme", URL: "https://acme.example"})
	if err != nil {
		t.Fatalf("add entity: %v", err)
	}
	resource, err := s.AddMonitorResource(ctx, MonitorResource{
		TopicID: topic.ID, EntityID: entity.ID, Name: "blog", URL: "https://acme.example/blog", ResourceType: "blog",
	})
	if err != nil {
		t.Fatalf("add resource: %v", err)
	}

	if snap, err := s.LatestMonitorSnapshot(ctx, resource.ID); err != nil || snap != nil {
		t.Fatalf("expected no snapshot yet, got %+v err=%v", snap, err)
	}

	snap, err := s.AddMonitorSnapshot(ctx, MonitorSnapshot{
		TopicID: topic.ID, EntityID: entity.ID, ResourceID: resource.ID,
		ContentHash: "abc123", ContentMarkdown: "# Acme Blog",
	})
	if err != nil {
		t.Fatalf("add snapshot: %v", err)
	}

	digest, err := s.AddMonitorDigest(ctx, MonitorDigest{
		TopicID: topic.ID, EntityID: entity.ID, ResourceID: resource.ID, SnapshotID: snap.ID,
		Summary: "new post published", ChangeType: "new_post",
	})
	if err != nil {
		t.Fatalf("add digest: %v", err)
	}
	if digest.ID == 0 {
		t.Fatal("expected digest to get an ID")
	}

	if _, err := s.DeleteMonitorTopic(ctx, "competitors"); err != nil {
		t.Fatalf("delete topic: %v", err)
	}

	digests, err := s.ListMonitorDigests(ctx, 0, 0, 0, 10)
	if err != nil {
		t.Fatalf("list digests after cascade delete: %v", err)
	}
	if len(digests) != 0 {
		t.Fatalf("expected cascade delete to remove digests, got %d", len(digests))
	}
}
