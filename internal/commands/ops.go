package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/megobari/megobari/internal/monitor"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
)

var cronExprParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var monitorEntityTypes = []string{"company", "person", "organization", "product"}
var monitorResourceTypes = []string{"blog", "repo", "pricing", "jobs", "changelog", "deals"}

const monitorUsage = "Usage:\n" +
	"/monitor — overview\n" +
	"/monitor topic list|add|remove\n" +
	"/monitor entity list|add|remove [topic]\n" +
	"/monitor resource list|add|remove [entity]\n" +
	"/monitor subscribe <target> <channel> [config]\n" +
	"/monitor check [topic] [entity]\n" +
	"/monitor baseline [topic] — generate initial digests\n" +
	"/monitor report [topic] — generate full report\n" +
	"/monitor digest [topic|entity]"

// registerOpsCommands wires scheduled work (cron, heartbeat) and the
// website monitor. Grounded on handlers/scheduling.py and
// handlers/monitoring.py.
func registerOpsCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "cron",
		Args:        "[add|remove|pause|resume] ...",
		Description: "Manage scheduled prompts",
		Section:     "ops",
		Handler:     cmdCron(deps),
	})
	r.Register(Definition{
		Name:        "heartbeat",
		Args:        "[add|remove|pause|resume|on|off|now] ...",
		Description: "Manage recurring health checks",
		Section:     "ops",
		Handler:     cmdHeartbeat(deps),
	})
	r.Register(Definition{
		Name:        "monitor",
		Args:        "[topic|entity|resource|subscribe|check|baseline|report|digest] ...",
		Description: "Manage website monitoring",
		Section:     "ops",
		Handler:     cmdMonitor(deps),
	})
}

func cmdCron(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			return cronList(ctx, tc, deps)
		}

		switch strings.ToLower(args[0]) {
		case "add":
			return cronAdd(ctx, tc, deps, args[1:])
		case "remove", "delete":
			return cronRemove(ctx, tc, deps, args[1:])
		case "pause", "disable":
			return cronToggle(ctx, tc, deps, args[1:], false)
		case "resume", "enable":
			return cronToggle(ctx, tc, deps, args[1:], true)
		default:
			_, err := tc.Reply(ctx, "Usage: /cron [add|remove|pause|resume]", false)
			return err
		}
	}
}

func cronList(ctx context.Context, tc transport.Context, deps *Deps) error {
	jobs, err := deps.Store.ListCronJobs(ctx, false)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to list cron jobs.", false)
		return replyErr
	}
	if len(jobs) == 0 {
		_, err := tc.Reply(ctx, "No cron jobs. Use /cron add <name> <m> <h> <dom> <mon> <dow> <prompt>", false)
		return err
	}
	lines := []string{"**Cron jobs:**", ""}
	for _, j := range jobs {
		icon := "✅"
		if !j.Enabled {
			icon = "⏸"
		}
		last := "never"
		if j.LastRunAt != nil {
			last = j.LastRunAt.Format("01-02 15:04")
		}
		lines = append(lines, fmt.Sprintf("%s **%s** `%s`", icon, j.Name, j.CronExpression))
		lines = append(lines, fmt.Sprintf("   %s (last: %s)", j.Prompt, last))
	}
	_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
	return err
}

func cronAdd(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) < 7 {
		_, err := tc.Reply(ctx, "Usage: /cron add <name> <minute> <hour> <dom> <month> <dow> <prompt...>", false)
		return err
	}
	name := args[0]
	expr := strings.Join(args[1:6], " ")
	prompt := strings.Join(args[6:], " ")

	if _, err := cronExprParser.Parse(expr); err != nil {
		_, replyErr := tc.Reply(ctx, fmt.Sprintf("Invalid cron expression '%s': %v", expr, err), false)
		return replyErr
	}

	existing, err := deps.Store.GetCronJob(ctx, name)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to check for existing cron job.", false)
		return replyErr
	}
	if existing != nil {
		_, err := tc.Reply(ctx, fmt.Sprintf("Cron job '%s' already exists.", name), false)
		return err
	}

	sessionName := "default"
	if session := deps.Sessions.Current(); session != nil {
		sessionName = session.Name
	}

	if _, err := deps.Store.AddCronJob(ctx, store.CronJob{
		Name:           name,
		CronExpression: expr,
		Prompt:         prompt,
		SessionName:    sessionName,
	}); err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to create cron job.", false)
		return replyErr
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("✅ Cron job '%s' created", name), false)
	return err
}

func cronRemove(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) < 1 {
		_, err := tc.Reply(ctx, "Usage: /cron remove <name>", false)
		return err
	}
	deleted, err := deps.Store.DeleteCronJob(ctx, args[0])
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to delete cron job.", false)
		return replyErr
	}
	if !deleted {
		_, err := tc.Reply(ctx, fmt.Sprintf("Cron job '%s' not found.", args[0]), false)
		return err
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("✅ Deleted cron job '%s'", args[0]), false)
	return err
}

func cronToggle(ctx context.Context, tc transport.Context, deps *Deps, args []string, enabled bool) error {
	if len(args) < 1 {
		_, err := tc.Reply(ctx, "Usage: /cron pause|resume <name>", false)
		return err
	}
	job, err := deps.Store.ToggleCronJob(ctx, args[0], enabled)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to update cron job.", false)
		return replyErr
	}
	if job == nil {
		_, err := tc.Reply(ctx, fmt.Sprintf("Cron job '%s' not found.", args[0]), false)
		return err
	}
	verb := "paused"
	if enabled {
		verb = "resumed"
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("✅ Cron job '%s' %s", args[0], verb), false)
	return err
}

func cmdHeartbeat(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			return heartbeatStatus(ctx, tc, deps)
		}

		switch strings.ToLower(args[0]) {
		case "add":
			return heartbeatAdd(ctx, tc, deps, args[1:])
		case "remove", "delete":
			return heartbeatRemove(ctx, tc, deps, args[1:])
		case "pause", "disable":
			return heartbeatToggle(ctx, tc, deps, args[1:], false)
		case "resume", "enable":
			return heartbeatToggle(ctx, tc, deps, args[1:], true)
		case "on", "start":
			minutes := 0
			if len(args) > 1 {
				if m, err := strconv.Atoi(args[1]); err == nil {
					minutes = m
				}
			}
			if minutes <= 0 {
				minutes = 30
			}
			deps.Scheduler.SetHeartbeatInterval(minutes)
			if !deps.Scheduler.Running() {
				deps.Scheduler.Start()
			}
			_, err := tc.Reply(ctx, fmt.Sprintf("💓 Heartbeat on, every %d minutes.", minutes), false)
			return err
		case "off", "stop":
			deps.Scheduler.SetHeartbeatInterval(0)
			_, err := tc.Reply(ctx, "💔 Heartbeat off.", false)
			return err
		case "now":
			deps.Scheduler.TriggerHeartbeatNow()
			_, err := tc.Reply(ctx, "💓 Running heartbeat check now...", false)
			return err
		default:
			_, err := tc.Reply(ctx, "Usage: /heartbeat [add|remove|pause|resume|on|off|now]", false)
			return err
		}
	}
}

func heartbeatStatus(ctx context.Context, tc transport.Context, deps *Deps) error {
	checks, err := deps.Store.ListHeartbeatChecks(ctx, false)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to list heartbeat checks.", false)
		return replyErr
	}

	interval := deps.Scheduler.HeartbeatIntervalMinutes()
	status := "off"
	if interval > 0 {
		status = fmt.Sprintf("on, every %d minutes", interval)
	}
	lines := []string{fmt.Sprintf("**Heartbeat:** %s", status), ""}

	if len(checks) == 0 {
		lines = append(lines, "No heartbeat checks. Use /heartbeat add <name> <prompt>")
	} else {
		lines = append(lines, "**Checks:**")
		for _, c := range checks {
			icon := "✅"
			if !c.Enabled {
				icon = "⏸"
			}
			lines = append(lines, fmt.Sprintf("%s **%s**: %s", icon, c.Name, c.Prompt))
		}
	}
	_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
	return err
}

func heartbeatAdd(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) < 2 {
		_, err := tc.Reply(ctx, "Usage: /heartbeat add <name> <prompt...>", false)
		return err
	}
	name := args[0]
	prompt := strings.Join(args[1:], " ")

	existing, err := deps.Store.GetHeartbeatCheck(ctx, name)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to check for existing heartbeat check.", false)
		return replyErr
	}
	if existing != nil {
		_, err := tc.Reply(ctx, fmt.Sprintf("Heartbeat check '%s' already exists.", name), false)
		return err
	}

	if _, err := deps.Store.AddHeartbeatCheck(ctx, name, prompt); err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to create heartbeat check.", false)
		return replyErr
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("✅ Heartbeat check '%s' created", name), false)
	return err
}

func heartbeatRemove(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) < 1 {
		_, err := tc.Reply(ctx, "Usage: /heartbeat remove <name>", false)
		return err
	}
	deleted, err := deps.Store.DeleteHeartbeatCheck(ctx, args[0])
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to delete heartbeat check.", false)
		return replyErr
	}
	if !deleted {
		_, err := tc.Reply(ctx, fmt.Sprintf("Heartbeat check '%s' not found.", args[0]), false)
		return err
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("✅ Deleted heartbeat check '%s'", args[0]), false)
	return err
}

func heartbeatToggle(ctx context.Context, tc transport.Context, deps *Deps, args []string, enabled bool) error {
	if len(args) < 1 {
		_, err := tc.Reply(ctx, "Usage: /heartbeat pause|resume <name>", false)
		return err
	}
	check, err := deps.Store.ToggleHeartbeatCheck(ctx, args[0], enabled)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to update heartbeat check.", false)
		return replyErr
	}
	if check == nil {
		_, err := tc.Reply(ctx, fmt.Sprintf("Heartbeat check '%s' not found.", args[0]), false)
		return err
	}
	verb := "paused"
	if enabled {
		verb = "resumed"
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("✅ Heartbeat check '%s' %s", args[0], verb), false)
	return err
}

func cmdMonitor(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			return monitorOverview(ctx, tc, deps)
		}

		switch strings.ToLower(args[0]) {
		case "topic":
			return monitorTopic(ctx, tc, deps, args[1:])
		case "entity":
			return monitorEntity(ctx, tc, deps, args[1:])
		case "resource":
			return monitorResource(ctx, tc, deps, args[1:])
		case "subscribe":
			return monitorSubscribe(ctx, tc, deps, args[1:])
		case "check":
			return monitorCheck(ctx, tc, deps, args[1:])
		case "baseline":
			return monitorBaseline(ctx, tc, deps, args[1:])
		case "report":
			return monitorReport(ctx, tc, deps, args[1:])
		case "digest":
			return monitorDigest(ctx, tc, deps, args[1:])
		default:
			_, err := tc.Reply(ctx, monitorUsage, false)
			return err
		}
	}
}

func monitorOverview(ctx context.Context, tc transport.Context, deps *Deps) error {
	topics, err := deps.Store.ListMonitorTopics(ctx, false)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to load monitor overview.", false)
		return replyErr
	}
	if len(topics) == 0 {
		_, err := tc.Reply(ctx, "No monitor topics. Use /monitor topic add <name>", false)
		return err
	}

	lines := []string{"**Monitor Topics:**", ""}
	for _, t := range topics {
		icon := "✅"
		if !t.Enabled {
			icon = "⏸"
		}
		desc := ""
		if t.Description != "" {
			desc = " — " + t.Description
		}

		entities, err := deps.Store.ListMonitorEntities(ctx, t.ID, false)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to load monitor overview.", false)
			return replyErr
		}
		resourceCount := 0
		for _, e := range entities {
			resources, err := deps.Store.ListMonitorResources(ctx, e.ID, 0, false)
			if err != nil {
				continue
			}
			resourceCount += len(resources)
		}

		lines = append(lines, fmt.Sprintf("%s **%s**%s", icon, t.Name, desc))
		lines = append(lines, fmt.Sprintf("   %d entities, %d resources", len(entities), resourceCount))
	}
	_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
	return err
}

func monitorTopic(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) == 0 || strings.ToLower(args[0]) == "list" {
		topics, err := deps.Store.ListMonitorTopics(ctx, false)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to list topics.", false)
			return replyErr
		}
		if len(topics) == 0 {
			_, err := tc.Reply(ctx, "No topics. Use /monitor topic add <name>", false)
			return err
		}
		lines := []string{"**Topics:**", ""}
		for _, t := range topics {
			icon := "✅"
			if !t.Enabled {
				icon = "⏸"
			}
			desc := ""
			if t.Description != "" {
				desc = " — " + t.Description
			}
			lines = append(lines, fmt.Sprintf("%s **%s**%s", icon, t.Name, desc))
		}
		_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 2 {
			_, err := tc.Reply(ctx, "Usage: /monitor topic add <name> [description]", false)
			return err
		}
		name := args[1]
		description := ""
		if len(args) > 2 {
			description = strings.Join(args[2:], " ")
		}
		existing, err := deps.Store.GetMonitorTopic(ctx, name)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to create topic.", false)
			return replyErr
		}
		if existing != nil {
			_, err := tc.Reply(ctx, fmt.Sprintf("Topic '%s' already exists.", name), false)
			return err
		}
		if _, err := deps.Store.AddMonitorTopic(ctx, name, description); err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to create topic.", false)
			return replyErr
		}
		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Topic '%s' created", name), false)
		return err

	case "remove":
		if len(args) < 2 {
			_, err := tc.Reply(ctx, "Usage: /monitor topic remove <name>", false)
			return err
		}
		deleted, err := deps.Store.DeleteMonitorTopic(ctx, args[1])
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to delete topic.", false)
			return replyErr
		}
		if !deleted {
			_, err := tc.Reply(ctx, fmt.Sprintf("Topic '%s' not found.", args[1]), false)
			return err
		}
		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Deleted topic '%s'", args[1]), false)
		return err

	default:
		_, err := tc.Reply(ctx, "Usage: /monitor topic list|add|remove", false)
		return err
	}
}

func monitorEntity(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) == 0 || strings.ToLower(args[0]) == "list" {
		var topicID int64
		if len(args) > 1 {
			topic, err := deps.Store.GetMonitorTopic(ctx, args[1])
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to list entities.", false)
				return replyErr
			}
			if topic == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Topic '%s' not found.", args[1]), false)
				return err
			}
			topicID = topic.ID
		}
		entities, err := deps.Store.ListMonitorEntities(ctx, topicID, false)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to list entities.", false)
			return replyErr
		}
		if len(entities) == 0 {
			_, err := tc.Reply(ctx, "No entities. Use /monitor entity add <topic> <name> <url> [type]", false)
			return err
		}
		lines := []string{"**Entities:**", ""}
		for _, e := range entities {
			icon := "✅"
			if !e.Enabled {
				icon = "⏸"
			}
			lines = append(lines, fmt.Sprintf("%s **%s** (%s)", icon, e.Name, e.EntityType))
			if e.URL != "" {
				lines = append(lines, "   "+e.URL)
			}
		}
		_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 4 {
			_, err := tc.Reply(ctx, "Usage: /monitor entity add <topic> <name> <url> [type]\n"+
				"Types: "+strings.Join(monitorEntityTypes, ", "), false)
			return err
		}
		topicName, name, url := args[1], args[2], args[3]
		entityType := "company"
		if len(args) > 4 {
			entityType = args[4]
		}
		if !containsStr(monitorEntityTypes, entityType) {
			_, err := tc.Reply(ctx, fmt.Sprintf("Invalid type '%s'. Valid: %s", entityType, strings.Join(monitorEntityTypes, ", ")), false)
			return err
		}

		topic, err := deps.Store.GetMonitorTopic(ctx, topicName)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add entity.", false)
			return replyErr
		}
		if topic == nil {
			_, err := tc.Reply(ctx, fmt.Sprintf("Topic '%s' not found.", topicName), false)
			return err
		}
		existing, err := deps.Store.GetMonitorEntity(ctx, name)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add entity.", false)
			return replyErr
		}
		if existing != nil {
			_, err := tc.Reply(ctx, fmt.Sprintf("Entity '%s' already exists.", name), false)
			return err
		}

		if _, err := deps.Store.AddMonitorEntity(ctx, store.MonitorEntity{
			TopicID:    topic.ID,
			Name:       name,
			URL:        url,
			EntityType: entityType,
		}); err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add entity.", false)
			return replyErr
		}
		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Entity '%s' added to topic '%s'", name, topicName), false)
		return err

	case "remove":
		if len(args) < 2 {
			_, err := tc.Reply(ctx, "Usage: /monitor entity remove <name>", false)
			return err
		}
		deleted, err := deps.Store.DeleteMonitorEntity(ctx, args[1])
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to delete entity.", false)
			return replyErr
		}
		if !deleted {
			_, err := tc.Reply(ctx, fmt.Sprintf("Entity '%s' not found.", args[1]), false)
			return err
		}
		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Deleted entity '%s'", args[1]), false)
		return err

	default:
		_, err := tc.Reply(ctx, "Usage: /monitor entity list|add|remove", false)
		return err
	}
}

func monitorResource(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) == 0 || strings.ToLower(args[0]) == "list" {
		var entityID int64
		if len(args) > 1 {
			entity, err := deps.Store.GetMonitorEntity(ctx, args[1])
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to list resources.", false)
				return replyErr
			}
			if entity == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Entity '%s' not found.", args[1]), false)
				return err
			}
			entityID = entity.ID
		}
		resources, err := deps.Store.ListMonitorResources(ctx, entityID, 0, false)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to list resources.", false)
			return replyErr
		}
		if len(resources) == 0 {
			_, err := tc.Reply(ctx, "No resources. Use /monitor resource add <entity> <url> <type> [name]", false)
			return err
		}
		lines := []string{"**Resources:**", ""}
		for _, r := range resources {
			last := "never"
			if r.LastCheckedAt != nil {
				last = r.LastCheckedAt.Format("01-02 15:04")
			}
			lines = append(lines, fmt.Sprintf("[%d] **%s** (%s)", r.ID, r.Name, r.ResourceType))
			lines = append(lines, fmt.Sprintf("   %s (last: %s)", r.URL, last))
		}
		_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 4 {
			_, err := tc.Reply(ctx, "Usage: /monitor resource add <entity> <url> <type> [name]\n"+
				"Types: "+strings.Join(monitorResourceTypes, ", "), false)
			return err
		}
		entityName, url, resourceType := args[1], args[2], args[3]
		if !containsStr(monitorResourceTypes, resourceType) {
			_, err := tc.Reply(ctx, fmt.Sprintf("Invalid type '%s'. Valid: %s", resourceType, strings.Join(monitorResourceTypes, ", ")), false)
			return err
		}
		resourceName := entityName + " " + resourceType
		if len(args) > 4 {
			resourceName = strings.Join(args[4:], " ")
		}

		entity, err := deps.Store.GetMonitorEntity(ctx, entityName)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add resource.", false)
			return replyErr
		}
		if entity == nil {
			_, err := tc.Reply(ctx, fmt.Sprintf("Entity '%s' not found.", entityName), false)
			return err
		}

		if _, err := deps.Store.AddMonitorResource(ctx, store.MonitorResource{
			TopicID:      entity.TopicID,
			EntityID:     entity.ID,
			Name:         resourceName,
			URL:          url,
			ResourceType: resourceType,
		}); err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add resource.", false)
			return replyErr
		}
		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Resource '%s' added to '%s'", resourceName, entityName), false)
		return err

	case "remove":
		if len(args) < 2 {
			_, err := tc.Reply(ctx, "Usage: /monitor resource remove <id>", false)
			return err
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Resource ID must be a number.", false)
			return replyErr
		}
		deleted, err := deps.Store.DeleteMonitorResource(ctx, id)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to delete resource.", false)
			return replyErr
		}
		if !deleted {
			_, err := tc.Reply(ctx, fmt.Sprintf("Resource #%d not found.", id), false)
			return err
		}
		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Deleted resource #%d", id), false)
		return err

	default:
		_, err := tc.Reply(ctx, "Usage: /monitor resource list|add|remove", false)
		return err
	}
}

func monitorSubscribe(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	if len(args) < 2 {
		_, err := tc.Reply(ctx, "Usage: /monitor subscribe <target> <channel_type> [config]\n"+
			"Channels: telegram, slack\nSlack requires webhook URL as 3rd arg", false)
		return err
	}
	targetName := args[0]
	channelType := strings.ToLower(args[1])
	if channelType != "telegram" && channelType != "slack" {
		_, err := tc.Reply(ctx, "Channel must be 'telegram' or 'slack'.", false)
		return err
	}

	var config string
	if channelType == "telegram" {
		b, _ := json.Marshal(map[string]int64{"chat_id": tc.ChatID()})
		config = string(b)
	} else {
		if len(args) < 3 {
			_, err := tc.Reply(ctx, "Slack requires webhook URL: /monitor subscribe <target> slack <webhook_url>", false)
			return err
		}
		b, _ := json.Marshal(map[string]string{"webhook_url": args[2]})
		config = string(b)
	}

	topic, err := deps.Store.GetMonitorTopic(ctx, targetName)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to add subscription.", false)
		return replyErr
	}
	if topic != nil {
		if _, err := deps.Store.AddMonitorSubscriber(ctx, store.MonitorSubscriber{
			ChannelType:   channelType,
			ChannelConfig: config,
			TopicID:       topic.ID,
		}); err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add subscription.", false)
			return replyErr
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("✅ Subscribed to topic '%s' via %s", targetName, channelType), false)
		return err
	}

	entity, err := deps.Store.GetMonitorEntity(ctx, targetName)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to add subscription.", false)
		return replyErr
	}
	if entity != nil {
		if _, err := deps.Store.AddMonitorSubscriber(ctx, store.MonitorSubscriber{
			ChannelType:   channelType,
			ChannelConfig: config,
			EntityID:      entity.ID,
		}); err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to add subscription.", false)
			return replyErr
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("✅ Subscribed to entity '%s' via %s", targetName, channelType), false)
		return err
	}

	_, err = tc.Reply(ctx, fmt.Sprintf("'%s' not found as topic or entity.", targetName), false)
	return err
}

func monitorCheck(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	var topicName, entityName string
	if len(args) > 0 {
		topicName = args[0]
	}
	if len(args) > 1 {
		entityName = args[1]
	}

	_, _ = tc.Reply(ctx, "🔍 Running monitor check...", false)

	digests, err := deps.Monitor.RunSweep(ctx, topicName, entityName)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Monitor check failed.", false)
		return replyErr
	}

	label := "Check"
	if topicName != "" {
		label = fmt.Sprintf("Check [%s]", topicName)
	}
	message := monitor.FormatDigestMessage(digests, label)
	if _, err := tc.Reply(ctx, message, true); err != nil {
		return err
	}

	if len(digests) > 0 {
		pending, err := deps.Monitor.NotifySubscribers(ctx, digests, label)
		if err != nil {
			deps.Log.Warn().Err(err).Msg("failed to notify monitor subscribers")
			return nil
		}
		DeliverMonitorNotifications(ctx, deps, pending)
	}
	return nil
}

// DeliverMonitorNotifications resolves each pending notification's
// subscriber chat_id from its stored channel_config and sends it. Exported
// so the scheduler's periodic sweep (wired in main) can reuse the same
// delivery path as the /monitor check command.
func DeliverMonitorNotifications(ctx context.Context, deps *Deps, pending []monitor.TelegramNotification) {
	if deps.Sender == nil {
		return
	}
	byTopic := make(map[int64][]monitor.TelegramNotification)
	for _, p := range pending {
		byTopic[p.TopicID] = append(byTopic[p.TopicID], p)
	}
	for topicID, notifications := range byTopic {
		subs, err := deps.Store.ListMonitorSubscribers(ctx, topicID, 0, 0)
		if err != nil {
			deps.Log.Warn().Err(err).Msg("failed to resolve monitor subscribers for delivery")
			continue
		}
		chatByID := make(map[int64]int64, len(subs))
		for _, sub := range subs {
			if sub.ChannelType != "telegram" {
				continue
			}
			var cfg struct {
				ChatID int64 `json:"chat_id"`
			}
			if err := json.Unmarshal([]byte(sub.ChannelConfig), &cfg); err == nil {
				chatByID[sub.ID] = cfg.ChatID
			}
		}
		for _, n := range notifications {
			chatID, ok := chatByID[n.SubscriberID]
			if !ok {
				continue
			}
			if err := deps.Sender.SendToChat(ctx, chatID, n.Message, true); err != nil {
				deps.Log.Warn().Err(err).Int64("subscriber_id", n.SubscriberID).Msg("failed to deliver monitor notification")
			}
		}
	}
}

func monitorBaseline(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	var topicName string
	if len(args) > 0 {
		topicName = args[0]
	}

	_, _ = tc.Reply(ctx, "📋 Generating baseline digests...", false)

	digests, err := deps.Monitor.GenerateBaselineDigests(ctx, topicName)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Baseline digest generation failed.", false)
		return replyErr
	}
	if len(digests) == 0 {
		_, err := tc.Reply(ctx, "No new baseline digests to generate.", false)
		return err
	}

	byEntity := make(map[string][]string)
	var order []string
	for _, d := range digests {
		if _, seen := byEntity[d.EntityName]; !seen {
			order = append(order, d.EntityName)
		}
		byEntity[d.EntityName] = append(byEntity[d.EntityName], fmt.Sprintf("  📋 %s: %s", d.ResourceName, d.Summary))
	}

	lines := []string{fmt.Sprintf("**Baseline Digests: %d summaries**", len(digests)), ""}
	for _, name := range order {
		lines = append(lines, "🏢 **"+name+"**")
		lines = append(lines, byEntity[name]...)
		lines = append(lines, "")
	}
	_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
	return err
}

func monitorReport(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	var topicName string
	if len(args) > 0 {
		topicName = args[0]
	}

	_, _ = tc.Reply(ctx, "📊 Generating market intelligence report...", false)

	report, err := deps.Monitor.GenerateReport(ctx, topicName)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Report generation failed.", false)
		return replyErr
	}

	const previewLimit = 3500
	preview := report
	if len(report) > previewLimit {
		preview = report[:previewLimit] + "\n\n... (full report available in dashboard)"
	}
	_, err = tc.Reply(ctx, preview, false)
	return err
}

func monitorDigest(ctx context.Context, tc transport.Context, deps *Deps, args []string) error {
	var topicID, entityID int64
	if len(args) > 0 {
		filterName := args[0]
		topic, err := deps.Store.GetMonitorTopic(ctx, filterName)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to load digests.", false)
			return replyErr
		}
		if topic != nil {
			topicID = topic.ID
		} else {
			entity, err := deps.Store.GetMonitorEntity(ctx, filterName)
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to load digests.", false)
				return replyErr
			}
			if entity == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("'%s' not found as topic or entity.", filterName), false)
				return err
			}
			entityID = entity.ID
		}
	}

	digests, err := deps.Store.ListMonitorDigests(ctx, topicID, entityID, 0, 20)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to load digests.", false)
		return replyErr
	}
	if len(digests) == 0 {
		_, err := tc.Reply(ctx, "No digests found.", false)
		return err
	}

	lines := []string{"**Recent Digests:**", ""}
	for _, d := range digests {
		icon := monitorChangeIcon(d.ChangeType)
		ts := d.CreatedAt.Format("01-02 15:04")
		lines = append(lines, fmt.Sprintf("%s [%s] `%s`: %s", icon, ts, d.ChangeType, d.Summary))
	}
	_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
	return err
}

var monitorChangeIcons = map[string]string{
	"new_post":       "📝",
	"price_change":   "💰",
	"new_release":    "🔄",
	"new_job":        "👥",
	"new_deal":       "🤝",
	"content_update": "📄",
	"new_feature":    "✨",
	"baseline":       "📋",
}

func monitorChangeIcon(changeType string) string {
	if icon, ok := monitorChangeIcons[changeType]; ok {
		return icon
	}
	return "📄"
}
