package timeline

import "github.com/mahaj/dupahar/pkg/model"

// Aggregate reduces a message's flat reaction list into display-ready
// groups, one per emoji, in order of each emoji's first appearance.
// Users within a group keep their first-seen order too, so identical
// input always produces identical output and UI diffing stays stable.
func Aggregate(reactions []model.Reaction, currentUserID string) []model.ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}
	index := make(map[string]int, len(reactions))
	groups := make([]model.ReactionGroup, 0, len(reactions))
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, model.ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.UserID)
		if r.UserID == currentUserID {
			groups[i].Me = true
		}
	}
	return groups
}
