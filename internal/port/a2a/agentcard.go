package a2a

import (
	"slices"

	a2alib "github.com/a2aproject/a2a-go/a2a"
)

const protocolVersion = "0.3.0"

// BuildAgentCard returns the AgentCard for a taskrelay instance. Every tool
// registered on the dispatcher is advertised as a skill.
func BuildAgentCard(baseURL, version string, tools map[string]string) a2alib.AgentCard {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	slices.Sort(names)

	skills := make([]a2alib.AgentSkill, 0, len(names))
	for _, name := range names {
		skills = append(skills, a2alib.AgentSkill{
			ID:          name,
			Name:        name,
			Description: tools[name],
			Tags:        []string{"taskrelay", "tool"},
			InputModes:  []string{"application/json"},
			OutputModes: []string{"application/json"},
		})
	}

	return a2alib.AgentCard{
		Name:               "taskrelay",
		Description:        "Task dispatcher that hands atomic work items to a coding agent and ingests its reports",
		URL:                baseURL,
		Version:            version,
		ProtocolVersion:    protocolVersion,
		DefaultInputModes:  []string{"application/json"},
		DefaultOutputModes: []string{"application/json"},
		Skills:             skills,
	}
}
