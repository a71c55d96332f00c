package legacysync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grupofarma/pharma_backend/config"
)

// AgentCaller fetches incremental batches from one site agent.
type AgentCaller interface {
	FetchSince(ctx context.Context, agent config.Agent, clienteSince, prescritorSince time.Time) (*AgentBatch, error)
}

// AgentClient talks to the per-site agent services. Calls are bounded by the
// client timeout; a slow site surfaces as that agent's error only.
type AgentClient struct {
	http *http.Client
}

func NewAgentClient() *AgentClient {
	return &AgentClient{
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

const agentDateLayout = "2006-01-02 15:04:05"

// FetchSince calls GET {base}/api/v1/sincronizacao with both watermarks and
// the agent's unit code, returning the combined client/prescriber batch.
func (c *AgentClient) FetchSince(ctx context.Context, agent config.Agent, clienteSince, prescritorSince time.Time) (*AgentBatch, error) {
	params := url.Values{}
	params.Set("dataMinimaCliente", clienteSince.Format(agentDateLayout))
	params.Set("dataMinimaPrescritor", prescritorSince.Format(agentDateLayout))
	params.Set("unit", agent.UnitCode)

	endpoint := agent.BaseURL + "/api/v1/sincronizacao?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if agent.Token != "" {
		req.Header.Set("Authorization", "Bearer "+agent.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent %s error %d: %s", agent.Code, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var batch AgentBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("agent %s malformed payload: %w", agent.Code, err)
	}
	return &batch, nil
}
