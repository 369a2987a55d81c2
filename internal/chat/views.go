package chat

import (
	"log/slog"

	"devcollab/internal/content"
	"devcollab/internal/models"
)

func (p *Pipeline) view(msg models.ChatMessage) models.MessageView {
	return p.views([]models.ChatMessage{msg})[0]
}

// views resolves senders and mentioned users with a single lookup. Users that
// cannot be resolved are shown by id only.
func (p *Pipeline) views(msgs []models.ChatMessage) []models.MessageView {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, msg := range msgs {
		add(msg.SenderID)
		for _, id := range msg.Mentions {
			add(id)
		}
	}

	profiles := make(map[string]models.Profile, len(ids))
	users, err := p.store.GetUsers(ids)
	if err != nil {
		slog.Error("failed to resolve message users", "error", err)
	}
	for _, u := range users {
		profiles[u.ID] = u.Profile()
	}
	profile := func(id string) models.Profile {
		if pr, ok := profiles[id]; ok {
			return pr
		}
		return models.Profile{ID: id}
	}

	out := make([]models.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		mentions := make([]models.Profile, 0, len(msg.Mentions))
		for _, id := range msg.Mentions {
			mentions = append(mentions, profile(id))
		}
		out = append(out, models.MessageView{
			ID:        msg.ID,
			ProjectID: msg.ProjectID,
			Sender:    profile(msg.SenderID),
			Text:      msg.Text,
			HTML:      content.RenderMarkdown(msg.Text),
			Mentions:  mentions,
			Edited:    msg.Edited,
			EditedAt:  msg.EditedAt,
			CreatedAt: msg.CreatedAt,
		})
	}
	return out
}
