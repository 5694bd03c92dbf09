package types

import (
	"time"
)

// SourceType identifies which external service produced an activity record
type SourceType string

const (
	SourceGithub SourceType = "github"
	SourceTrello SourceType = "trello"
)

// Category is the closed set of announcement categories
type Category string

const (
	CategoryNone Category = ""

	CategoryIssueOpened    Category = "issue-opened"
	CategoryIssueUpdated   Category = "issue-updated"
	CategoryIssueClosed    Category = "issue-closed"
	CategoryIssueCommented Category = "issue-commented"

	CategoryPROpened    Category = "pr-opened"
	CategoryPRUpdated   Category = "pr-updated"
	CategoryPRClosed    Category = "pr-closed"
	CategoryPRCommented Category = "pr-commented"

	CategoryCardCreated       Category = "card-created"
	CategoryCardMoved         Category = "card-moved"
	CategoryCardModified      Category = "card-modified"
	CategoryCardCommented     Category = "card-commented"
	CategoryCardMemberAdded   Category = "card-member-added"
	CategoryCardMemberRemoved Category = "card-member-removed"
	CategoryCardMovedBoard    Category = "card-moved-board"
)

// RawActivityRecord is a single item of activity fetched from an external
// service, normalized just enough for classification. It is not persisted.
type RawActivityRecord struct {
	Source    SourceType
	Actor     string
	SubjectID string
	Action    string
	URL       string

	// CreatedAt and UpdatedAt drive the opened/updated distinction for
	// github subjects. Trello actions carry only UpdatedAt (the action date).
	CreatedAt time.Time
	UpdatedAt time.Time

	// IsPullRequest marks records whose subject is a pull request, including
	// issue comments that belong to one. IsComment marks comment activity.
	IsPullRequest bool
	IsComment     bool

	// Display fields used by the message templates
	RepoName    string
	CardName    string
	BoardName   string
	ListBefore  string
	ListAfter   string
	SourceBoard string
	TargetList  string
}

// ClassifiedEvent is the announcement derived from one RawActivityRecord
type ClassifiedEvent struct {
	Category           Category
	DisplayText        string
	Source             SourceType
	SubjectID          string
	WatermarkKey       string
	EffectiveTimestamp time.Time
}
