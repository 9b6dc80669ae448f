// Package query answers questions over the vector index. The engine's
// public contract is that it never raises: every failure mode is expressed
// in the returned response.
package query

// Profile parameterizes the answer style.
type Profile struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float32 `json:"temperature"`
}

const baseInstruction = "You answer questions using only the provided video transcript excerpts. " +
	"Cite excerpts by their [n] number. If the excerpts do not contain the answer, say so plainly."

var profiles = map[string]Profile{
	"default": {
		ID:           "default",
		Name:         "Default",
		SystemPrompt: baseInstruction,
		Temperature:  0.7,
	},
	"concise": {
		ID:           "concise",
		Name:         "Concise",
		SystemPrompt: baseInstruction + " Keep the answer to a few sentences.",
		Temperature:  0.4,
	},
	"detailed": {
		ID:           "detailed",
		Name:         "Detailed",
		SystemPrompt: baseInstruction + " Give a thorough answer covering every relevant excerpt.",
		Temperature:  0.7,
	},
	"educational": {
		ID:           "educational",
		Name:         "Educational",
		SystemPrompt: baseInstruction + " Explain step by step, defining terms a newcomer might not know.",
		Temperature:  0.6,
	},
}

// ResolveProfile returns the named profile, falling back to default for
// unknown IDs.
func ResolveProfile(id string) Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return profiles["default"]
}

// Profiles lists the available profile IDs.
func Profiles() []string {
	out := make([]string, 0, len(profiles))
	for id := range profiles {
		out = append(out, id)
	}
	return out
}
