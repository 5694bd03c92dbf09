// Package classify maps raw activity records to announcement events.
package classify

import (
	"fmt"
	"time"

	"github.com/cumodsquad/squadbot/pkg/types"
)

// Watermark keys, one per independently tracked activity category.
const (
	KeyIssues  = "last_issue"
	KeyPRs     = "last_pr"
	KeyActions = "last_action"
)

// Epochs returns the sentinel watermark per key: the launch date of each
// upstream service. A watermark still at its sentinel marks a first run,
// whose backlog is absorbed without being announced.
func Epochs() map[string]time.Time {
	return map[string]time.Time{
		KeyIssues:  time.Date(2007, time.October, 1, 0, 0, 0, 0, time.UTC),
		KeyPRs:     time.Date(2007, time.October, 1, 0, 0, 0, 0, time.UTC),
		KeyActions: time.Date(2011, time.September, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Trello action types recognized by the classifier.
const (
	actionCreateCard       = "createCard"
	actionUpdateCard       = "updateCard"
	actionCommentCard      = "commentCard"
	actionAddMember        = "addMemberToCard"
	actionRemoveMember     = "removeMemberFromCard"
	actionMoveCardToBoard  = "moveCardToBoard"
	actionAddChecklist     = "addChecklistToCard"
	actionRemoveChecklist  = "removeChecklistFromCard"
	actionAddAttachment    = "addAttachmentToCard"
	actionDeleteAttachment = "deleteAttachmentFromCard"
)

// Key returns the watermark key a record's timestamp is compared against.
// The key is known before classification so that records at or behind the
// watermark can be filtered without building their announcement.
func Key(rec types.RawActivityRecord) string {
	switch rec.Source {
	case types.SourceGithub:
		if rec.IsPullRequest {
			return KeyPRs
		}
		return KeyIssues
	case types.SourceTrello:
		return KeyActions
	default:
		return ""
	}
}

// Classify derives the announcement event for a raw activity record. The
// second return value is false when the record carries an action the bot
// does not announce; such records are dropped, not errors.
func Classify(rec types.RawActivityRecord) (types.ClassifiedEvent, bool) {
	switch rec.Source {
	case types.SourceGithub:
		return classifyGithub(rec)
	case types.SourceTrello:
		return classifyTrello(rec)
	default:
		return types.ClassifiedEvent{}, false
	}
}

func classifyGithub(rec types.RawActivityRecord) (types.ClassifiedEvent, bool) {
	ev := types.ClassifiedEvent{
		Source:             types.SourceGithub,
		SubjectID:          rec.SubjectID,
		EffectiveTimestamp: rec.UpdatedAt,
	}

	kind := "issue"
	ev.WatermarkKey = KeyIssues
	if rec.IsPullRequest {
		kind = "pull request"
		ev.WatermarkKey = KeyPRs
	}

	// A subject whose creation time equals its update time is brand new.
	isNew := rec.CreatedAt.Equal(rec.UpdatedAt)

	switch {
	case rec.IsComment:
		if rec.IsPullRequest {
			ev.Category = types.CategoryPRCommented
		} else {
			ev.Category = types.CategoryIssueCommented
		}
		age := "An existing"
		if isNew {
			age = "A new"
		}
		ev.DisplayText = fmt.Sprintf("%s %s for '%s' has been commented on by %s:\n<%s>",
			age, kind, rec.RepoName, rec.Actor, rec.URL)
	case isNew:
		if rec.IsPullRequest {
			ev.Category = types.CategoryPROpened
		} else {
			ev.Category = types.CategoryIssueOpened
		}
		ev.DisplayText = fmt.Sprintf("A new %s for '%s' has been opened by %s:\n<%s>",
			kind, rec.RepoName, rec.Actor, rec.URL)
	case rec.Action == "closed":
		if rec.IsPullRequest {
			ev.Category = types.CategoryPRClosed
		} else {
			ev.Category = types.CategoryIssueClosed
		}
		ev.DisplayText = fmt.Sprintf("An existing %s for '%s' has been closed by %s:\n<%s>",
			kind, rec.RepoName, rec.Actor, rec.URL)
	default:
		if rec.IsPullRequest {
			ev.Category = types.CategoryPRUpdated
		} else {
			ev.Category = types.CategoryIssueUpdated
		}
		ev.DisplayText = fmt.Sprintf("An existing %s for '%s' has been updated by %s:\n<%s>",
			kind, rec.RepoName, rec.Actor, rec.URL)
	}

	return ev, true
}

func classifyTrello(rec types.RawActivityRecord) (types.ClassifiedEvent, bool) {
	ev := types.ClassifiedEvent{
		Source:             types.SourceTrello,
		SubjectID:          rec.SubjectID,
		WatermarkKey:       KeyActions,
		EffectiveTimestamp: rec.UpdatedAt,
	}

	switch rec.Action {
	case actionCreateCard:
		ev.Category = types.CategoryCardCreated
		ev.DisplayText = fmt.Sprintf("%s created the card '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.BoardName, rec.URL)
	case actionUpdateCard:
		if rec.ListBefore == "" || rec.ListAfter == "" {
			// Plain card edits are too noisy to announce.
			return types.ClassifiedEvent{}, false
		}
		ev.Category = types.CategoryCardMoved
		ev.DisplayText = fmt.Sprintf("%s moved the card '%s' from '%s' to '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.ListBefore, rec.ListAfter, rec.BoardName, rec.URL)
	case actionAddChecklist, actionRemoveChecklist, actionAddAttachment, actionDeleteAttachment:
		ev.Category = types.CategoryCardModified
		ev.DisplayText = fmt.Sprintf("%s modified the card '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.BoardName, rec.URL)
	case actionCommentCard:
		ev.Category = types.CategoryCardCommented
		ev.DisplayText = fmt.Sprintf("%s commented on the card '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.BoardName, rec.URL)
	case actionAddMember:
		ev.Category = types.CategoryCardMemberAdded
		ev.DisplayText = fmt.Sprintf("%s was added to the card '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.BoardName, rec.URL)
	case actionRemoveMember:
		ev.Category = types.CategoryCardMemberRemoved
		ev.DisplayText = fmt.Sprintf("%s was removed from the card '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.BoardName, rec.URL)
	case actionMoveCardToBoard:
		ev.Category = types.CategoryCardMovedBoard
		ev.DisplayText = fmt.Sprintf("%s moved the card '%s' from the board '%s' to '%s' on the Trello board '%s':\n<%s>",
			rec.Actor, rec.CardName, rec.SourceBoard, rec.TargetList, rec.BoardName, rec.URL)
	default:
		// Unrecognized Trello action types are intentionally not announced.
		return types.ClassifiedEvent{}, false
	}

	return ev, true
}
