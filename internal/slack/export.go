package slack

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mentionmap/slack-mention-map/internal/models"
)

type exportUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Profile  struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
	} `json:"profile"`
}

// ParseExport decodes a channel file from a Slack workspace export: a JSON
// array of message objects in conversations.history shape.
func ParseExport(data []byte) ([]models.Message, error) {
	var raw []rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode message export: %w", err)
	}

	messages := make([]models.Message, 0, len(raw))
	for _, m := range raw {
		messages = append(messages, toMessage(m))
	}
	return messages, nil
}

// ParseExportUsers decodes users.json from a workspace export into id -> display name,
// using the same precedence as UserName.
func ParseExportUsers(data []byte) (map[string]string, error) {
	var raw []exportUser
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode users export: %w", err)
	}

	names := make(map[string]string, len(raw))
	for _, u := range raw {
		for _, name := range []string{u.RealName, u.Profile.RealName, u.Profile.DisplayName, u.Name} {
			if name != "" {
				names[u.ID] = name
				break
			}
		}
	}
	return names, nil
}
