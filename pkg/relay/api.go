package relay

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

type apiConnection struct {
	ID      int       `json:"id"`
	Remote  string    `json:"remote"`
	Created time.Time `json:"created"`
}

type apiSession struct {
	Name        string          `json:"name"`
	Created     time.Time       `json:"created"`
	Connections []apiConnection `json:"connections"`
}

type apiResponse struct {
	Sessions []apiSession `json:"sessions"`
}

func (r *Relay) handleAPI(w http.ResponseWriter, _ *http.Request) {
	resp := &apiResponse{
		Sessions: []apiSession{},
	}

	for _, s := range r.Sessions() {
		as := apiSession{
			Name:        s.Name,
			Created:     s.Created,
			Connections: []apiConnection{},
		}

		for _, c := range s.Connections() {
			as.Connections = append(as.Connections, apiConnection{
				ID:      c.ID,
				Remote:  c.Remote,
				Created: c.Created,
			})
		}

		sort.Slice(as.Connections, func(i, j int) bool {
			return as.Connections[i].ID < as.Connections[j].ID
		})

		resp.Sessions = append(resp.Sessions, as)
	}

	sort.Slice(resp.Sessions, func(i, j int) bool {
		return resp.Sessions[i].Name < resp.Sessions[j].Name
	})

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Errorf("Failed to encode API response: %s", err)
	}
}
