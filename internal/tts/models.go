package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/solenne/livecast/internal/domain"
)

const (
	pathModelList    = "/api/voice/model/list"
	pathModelDefault = "/api/voice/model/default"
	pathModelDelete  = "/api/voice/model/delete"
)

// VoiceModel describes one cloned voice registered with the service.
type VoiceModel struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Describe  string `json:"describe"`
	IsDefault bool   `json:"is_default"`
}

// ListModels returns the voice models available to this license.
func (c *Client) ListModels(ctx context.Context) ([]VoiceModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathModelList, nil)
	if err != nil {
		return nil, err
	}

	env, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("listing voice models: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("listing voice models: %s", env.Msg)
	}

	var models []VoiceModel
	if err := json.Unmarshal(env.Data, &models); err != nil {
		return nil, fmt.Errorf("malformed model list: %w", err)
	}
	return models, nil
}

// SetDefault marks modelID as the service-side default voice.
func (c *Client) SetDefault(ctx context.Context, modelID int) error {
	return c.postModel(ctx, pathModelDefault, modelID)
}

// DeleteModel removes a cloned voice from the service.
func (c *Client) DeleteModel(ctx context.Context, modelID int) error {
	return c.postModel(ctx, pathModelDelete, modelID)
}

func (c *Client) postModel(ctx context.Context, path string, modelID int) error {
	body := fmt.Sprintf(`{"model_id":%d}`, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.do(req)
	if err != nil {
		return err
	}
	if env.Code != 0 {
		if env.Code == 404 {
			return fmt.Errorf("model %d: %w", modelID, domain.ErrNotFound)
		}
		return fmt.Errorf("model %d: %s", modelID, env.Msg)
	}
	return nil
}
