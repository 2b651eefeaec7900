package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/megobari/megobari/internal/store"
)

type personaDTO struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	SystemPrompt string         `json:"system_prompt"`
	MCPServers   []string       `json:"mcp_servers"`
	Skills       []string       `json:"skills"`
	Config       map[string]any `json:"config"`
	IsDefault    bool           `json:"is_default"`
	CreatedAt    string         `json:"created_at"`
}

func personaDTOFrom(p *store.Persona) personaDTO {
	mcpServers, skills, config := p.MCPServers, p.Skills, p.Config
	if mcpServers == nil {
		mcpServers = []string{}
	}
	if skills == nil {
		skills = []string{}
	}
	if config == nil {
		config = map[string]any{}
	}
	return personaDTO{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		SystemPrompt: p.SystemPrompt,
		MCPServers:   mcpServers,
		Skills:       skills,
		Config:       config,
		IsDefault:    p.IsDefault,
		CreatedAt:    p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// handleListPersonas serves every persona, matching personas.py's
// list_personas.
func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.store.ListPersonas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]personaDTO, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaDTOFrom(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetPersona serves a single persona by name, matching
// personas.py's get_persona.
func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.store.GetPersona(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Persona '"+name+"' not found")
		return
	}
	writeJSON(w, http.StatusOK, personaDTOFrom(p))
}
