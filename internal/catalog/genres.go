package catalog

import (
	"encoding/json"
	"strings"
)

// GenreList decodes the stored genre array. Malformed values read as empty.
func (e Event) GenreList() []string {
	var genres []string
	if err := json.Unmarshal([]byte(e.Genres), &genres); err != nil {
		return nil
	}
	return genres
}

// SetGenres stores genres as a JSON array, dropping blanks and duplicates.
func (e *Event) SetGenres(genres []string) {
	seen := make(map[string]bool, len(genres))
	cleaned := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		cleaned = append(cleaned, g)
	}
	b, _ := json.Marshal(cleaned)
	e.Genres = string(b)
}

// EventView is the JSON shape of a listed event.
type EventView struct {
	Event
	GenreList []string `json:"genres"`
}

func Present(events []Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		genres := e.GenreList()
		if genres == nil {
			genres = []string{}
		}
		out = append(out, EventView{Event: e, GenreList: genres})
	}
	return out
}
