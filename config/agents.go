package config

import (
	"fmt"
	"os"
	"strings"
)

// Agent is one per-site sync agent reachable over HTTP. Each branch (or group
// of branches) runs its own agent next to the legacy POS database.
type Agent struct {
	Code     string
	BaseURL  string
	Token    string
	UnitCode string
}

// GetSyncAgents builds the agent registry from env:
//
//	SYNC_AGENTS=matriz,filial02
//	AGENT_MATRIZ_BASE_URL=http://10.0.1.5:3333
//	AGENT_MATRIZ_TOKEN=...
//	AGENT_MATRIZ_UNIT=1
//
// Agents with a missing base URL are skipped, they are not an error: a site
// can be provisioned in config before its agent is online.
func GetSyncAgents() []Agent {
	codes := strings.Split(os.Getenv("SYNC_AGENTS"), ",")
	agents := make([]Agent, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		prefix := "AGENT_" + strings.ToUpper(code)
		baseURL := strings.TrimSpace(os.Getenv(prefix + "_BASE_URL"))
		if baseURL == "" {
			continue
		}
		unit := strings.TrimSpace(os.Getenv(prefix + "_UNIT"))
		if unit == "" {
			unit = code
		}
		agents = append(agents, Agent{
			Code:     code,
			BaseURL:  strings.TrimRight(baseURL, "/"),
			Token:    strings.TrimSpace(os.Getenv(prefix + "_TOKEN")),
			UnitCode: unit,
		})
	}
	return agents
}

// GetSyncAgent looks an agent up by code.
func GetSyncAgent(code string) (Agent, error) {
	for _, a := range GetSyncAgents() {
		if strings.EqualFold(a.Code, code) {
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("sync agent %q not configured", code)
}
