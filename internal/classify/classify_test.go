package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumodsquad/squadbot/pkg/types"
)

var (
	created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	updated = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
)

func githubRecord(mutate func(*types.RawActivityRecord)) types.RawActivityRecord {
	rec := types.RawActivityRecord{
		Source:    types.SourceGithub,
		Actor:     "octocat",
		SubjectID: "https://github.com/cumodsquad/ui/issues/12",
		URL:       "https://github.com/cumodsquad/ui/issues/12",
		RepoName:  "cumodsquad/ui",
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestClassifyGithub(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*types.RawActivityRecord)
		wantCategory types.Category
		wantKey      string
	}{
		{
			name:         "new issue",
			mutate:       func(r *types.RawActivityRecord) { r.UpdatedAt = r.CreatedAt },
			wantCategory: types.CategoryIssueOpened,
			wantKey:      KeyIssues,
		},
		{
			name:         "updated issue",
			mutate:       nil,
			wantCategory: types.CategoryIssueUpdated,
			wantKey:      KeyIssues,
		},
		{
			name:         "closed issue",
			mutate:       func(r *types.RawActivityRecord) { r.Action = "closed" },
			wantCategory: types.CategoryIssueClosed,
			wantKey:      KeyIssues,
		},
		{
			name:         "issue comment",
			mutate:       func(r *types.RawActivityRecord) { r.IsComment = true },
			wantCategory: types.CategoryIssueCommented,
			wantKey:      KeyIssues,
		},
		{
			name: "new pull request",
			mutate: func(r *types.RawActivityRecord) {
				r.IsPullRequest = true
				r.UpdatedAt = r.CreatedAt
			},
			wantCategory: types.CategoryPROpened,
			wantKey:      KeyPRs,
		},
		{
			name:         "closed pull request",
			mutate:       func(r *types.RawActivityRecord) { r.IsPullRequest = true; r.Action = "closed" },
			wantCategory: types.CategoryPRClosed,
			wantKey:      KeyPRs,
		},
		{
			name: "comment on pull request counts against the pr watermark",
			mutate: func(r *types.RawActivityRecord) {
				r.IsPullRequest = true
				r.IsComment = true
			},
			wantCategory: types.CategoryPRCommented,
			wantKey:      KeyPRs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Classify(githubRecord(tt.mutate))
			require.True(t, ok)
			assert.Equal(t, tt.wantCategory, ev.Category)
			assert.Equal(t, tt.wantKey, ev.WatermarkKey)
			assert.Contains(t, ev.DisplayText, "octocat")
			assert.Contains(t, ev.DisplayText, "cumodsquad/ui")
			assert.Contains(t, ev.DisplayText, ev.SubjectID)
			assert.Equal(t, githubRecord(tt.mutate).UpdatedAt, ev.EffectiveTimestamp)
		})
	}
}

func trelloRecord(action string, mutate func(*types.RawActivityRecord)) types.RawActivityRecord {
	rec := types.RawActivityRecord{
		Source:    types.SourceTrello,
		Actor:     "squadmember",
		SubjectID: "abc123",
		Action:    action,
		URL:       "https://trello.com/c/abc123",
		CardName:  "Fix the login flow",
		BoardName: "UI Development",
		UpdatedAt: updated,
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestClassifyTrello(t *testing.T) {
	tests := []struct {
		name         string
		rec          types.RawActivityRecord
		wantCategory types.Category
	}{
		{
			name:         "card created",
			rec:          trelloRecord("createCard", nil),
			wantCategory: types.CategoryCardCreated,
		},
		{
			name: "card moved between lists",
			rec: trelloRecord("updateCard", func(r *types.RawActivityRecord) {
				r.ListBefore = "In Progress"
				r.ListAfter = "Done"
			}),
			wantCategory: types.CategoryCardMoved,
		},
		{
			name:         "checklist added",
			rec:          trelloRecord("addChecklistToCard", nil),
			wantCategory: types.CategoryCardModified,
		},
		{
			name:         "attachment removed",
			rec:          trelloRecord("deleteAttachmentFromCard", nil),
			wantCategory: types.CategoryCardModified,
		},
		{
			name:         "card commented",
			rec:          trelloRecord("commentCard", nil),
			wantCategory: types.CategoryCardCommented,
		},
		{
			name:         "member added",
			rec:          trelloRecord("addMemberToCard", nil),
			wantCategory: types.CategoryCardMemberAdded,
		},
		{
			name:         "member removed",
			rec:          trelloRecord("removeMemberFromCard", nil),
			wantCategory: types.CategoryCardMemberRemoved,
		},
		{
			name: "card moved to another board",
			rec: trelloRecord("moveCardToBoard", func(r *types.RawActivityRecord) {
				r.SourceBoard = "Suggestions"
				r.TargetList = "Backlog"
			}),
			wantCategory: types.CategoryCardMovedBoard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Classify(tt.rec)
			require.True(t, ok)
			assert.Equal(t, tt.wantCategory, ev.Category)
			assert.Equal(t, KeyActions, ev.WatermarkKey)
			assert.Contains(t, ev.DisplayText, tt.rec.CardName)
			assert.Contains(t, ev.DisplayText, tt.rec.URL)
		})
	}
}

func TestClassifyDropsUnannouncedActions(t *testing.T) {
	// A bare card edit with no list change is not announced.
	_, ok := Classify(trelloRecord("updateCard", nil))
	assert.False(t, ok)

	// Upstream action types the bot does not know about are dropped silently.
	_, ok = Classify(trelloRecord("addLabelToCard", nil))
	assert.False(t, ok)

	// Records from an unknown source are dropped.
	_, ok = Classify(types.RawActivityRecord{Source: "gitlab"})
	assert.False(t, ok)
}
