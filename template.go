package mediaforge

import (
	"context"
	"fmt"
)

// TemplateInfo is the API's view of a stored processing template.
type TemplateInfo struct {
	ID      string                 `json:"template_id"`
	Name    string                 `json:"name"`
	OK      string                 `json:"ok"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Content map[string]interface{} `json:"content"`

	StatusCode int `json:"-"`
}

func (i *TemplateInfo) setStatusCode(code int) {
	i.StatusCode = code
}

// CreateTemplate stores a named step set for reuse across batches.
func (c *Client) CreateTemplate(ctx context.Context, name string, steps *Steps) (*TemplateInfo, error) {
	params := map[string]interface{}{
		"name":     name,
		"template": map[string]interface{}{"steps": steps.toMap()},
	}
	resp, err := newRequest(c).post(ctx, "/templates", params, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	info := &TemplateInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetTemplate fetches a stored template by ID.
func (c *Client) GetTemplate(ctx context.Context, templateID string) (*TemplateInfo, error) {
	resp, err := newRequest(c).get(ctx, "/templates/"+templateID, nil)
	if err != nil {
		return nil, err
	}
	info := &TemplateInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	return info, nil
}

// UpdateTemplate replaces the name and step set of a stored template.
func (c *Client) UpdateTemplate(ctx context.Context, templateID, name string, steps *Steps) (*TemplateInfo, error) {
	params := map[string]interface{}{
		"name":     name,
		"template": map[string]interface{}{"steps": steps.toMap()},
	}
	resp, err := newRequest(c).put(ctx, "/templates/"+templateID, params)
	if err != nil {
		return nil, err
	}
	info := &TemplateInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	return info, nil
}

// DeleteTemplate removes a stored template.
func (c *Client) DeleteTemplate(ctx context.Context, templateID string) error {
	resp, err := newRequest(c).delete(ctx, "/templates/"+templateID, nil)
	if err != nil {
		return err
	}
	info := &TemplateInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return err
	}
	if info.StatusCode < 200 || info.StatusCode >= 300 {
		return requestError(fmt.Sprintf("delete template %s (HTTP %d): %s", templateID, info.StatusCode, info.Error), nil)
	}
	return nil
}
