package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/config"
	"github.com/megobari/megobari/internal/store"
)

// applySeedFile loads the optional config.yaml under cfg.HomeDir and
// creates any persona/monitor-topic rows it names that don't already
// exist. It never updates or deletes an existing row — the store, once
// seeded or hand-edited via commands, always wins over the file.
func applySeedFile(ctx context.Context, cfg *config.Config, st *store.Store, log zerolog.Logger) error {
	sf, err := config.LoadSeedFile(cfg.SeedFilePath())
	if err != nil {
		return fmt.Errorf("load config.yaml: %w", err)
	}
	if sf == nil {
		return nil
	}

	for _, p := range sf.Personas {
		existing, err := st.GetPersona(ctx, p.Name)
		if err != nil {
			return fmt.Errorf("check persona %s: %w", p.Name, err)
		}
		if existing != nil {
			continue
		}
		if _, err := st.CreatePersona(ctx, store.Persona{
			Name:         p.Name,
			Description:  p.Description,
			SystemPrompt: p.SystemPrompt,
			MCPServers:   p.MCPServers,
			Skills:       p.Skills,
			IsDefault:    p.IsDefault,
		}); err != nil {
			return fmt.Errorf("seed persona %s: %w", p.Name, err)
		}
		log.Info().Str("persona", p.Name).Msg("seeded persona from config.yaml")
	}

	for _, t := range sf.MonitorTopics {
		topic, err := st.GetMonitorTopic(ctx, t.Name)
		if err != nil {
			return fmt.Errorf("check monitor topic %s: %w", t.Name, err)
		}
		if topic == nil {
			topic, err = st.AddMonitorTopic(ctx, t.Name, t.Description)
			if err != nil {
				return fmt.Errorf("seed monitor topic %s: %w", t.Name, err)
			}
			log.Info().Str("topic", t.Name).Msg("seeded monitor topic from config.yaml")
		}

		for _, e := range t.Entities {
			entity, err := st.GetMonitorEntity(ctx, e.Name)
			if err != nil {
				return fmt.Errorf("check monitor entity %s: %w", e.Name, err)
			}
			if entity != nil {
				// Already seeded (or hand-created) on an earlier run —
				// its resources were seeded alongside it then, so skip
				// re-adding them here and avoid duplicate rows.
				continue
			}
			entity, err = st.AddMonitorEntity(ctx, store.MonitorEntity{
				TopicID:     topic.ID,
				Name:        e.Name,
				URL:         e.URL,
				EntityType:  e.EntityType,
				Description: e.Description,
				Enabled:     true,
			})
			if err != nil {
				return fmt.Errorf("seed monitor entity %s: %w", e.Name, err)
			}
			log.Info().Str("entity", e.Name).Msg("seeded monitor entity from config.yaml")

			for _, r := range e.Resources {
				if _, err := st.AddMonitorResource(ctx, store.MonitorResource{
					TopicID:      topic.ID,
					EntityID:     entity.ID,
					Name:         r.Name,
					URL:          r.URL,
					ResourceType: r.ResourceType,
					Enabled:      true,
				}); err != nil {
					return fmt.Errorf("seed monitor resource %s: %w", r.Name, err)
				}
			}
		}
	}

	return nil
}
