package chat

import (
	"context"

	"github.com/samber/lo"
)

// Summary is the badge state of one user, for clients that poll instead of holding a socket.
type Summary struct {
	Count int          `json:"count"`
	Items []InboxEntry `json:"items"`
}

// UnreadSummary sums unread messages across the user's conversations. It reads the same store
// rows the live events are produced from, so a poll after an event always agrees with it.
func (s *Service) UnreadSummary(ctx context.Context, tenantID, userID string) (Summary, error) {
	entries, err := s.Inbox(ctx, tenantID, userID)
	if err != nil {
		return Summary{}, err
	}
	items := lo.Filter(entries, func(e InboxEntry, _ int) bool { return e.UnreadCount > 0 })
	return Summary{
		Count: lo.SumBy(items, func(e InboxEntry) int { return e.UnreadCount }),
		Items: items,
	}, nil
}
