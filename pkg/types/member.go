package types

import (
	"time"
)

// MemberRecord maps a team member's chat handle to their accounts on the
// monitored services. Persisted as part of the member directory.
type MemberRecord struct {
	ChatHandle   string    `json:"chat_handle"`
	GithubHandle string    `json:"github_handle"`
	TrelloHandle string    `json:"trello_handle"`
	TrelloName   string    `json:"trello_name"`
	AddedAt      time.Time `json:"added_at"`
}
