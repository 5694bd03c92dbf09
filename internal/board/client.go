// Package board wraps the Trello API: bulk board actions for the poller,
// plus the card list and member lookups behind chat commands.
package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adlio/trello"
	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/internal/command"
	"github.com/cumodsquad/squadbot/pkg/types"
)

// actionPageSize bounds how many recent actions a single poll fetches.
const actionPageSize = "200"

// Client wraps the Trello API for the boards the bot watches.
type Client struct {
	apiClient *trello.Client
	logger    *zap.Logger
}

// NewClient creates a Trello client from an API key and member token.
func NewClient(apiKey, token string, logger *zap.Logger) *Client {
	return &Client{
		apiClient: trello.NewClient(apiKey, token),
		logger:    logger,
	}
}

// boardAction is the slice of an action's wire form the bot reads. Decoded
// directly because the generated client's ActionData drops boardSource,
// which carries the originating board of a moveCardToBoard action.
type boardAction struct {
	Type          string        `json:"type"`
	Date          time.Time     `json:"date"`
	MemberCreator *actionMember `json:"memberCreator"`
	Member        *actionMember `json:"member"`
	Data          actionData    `json:"data"`
}

type actionMember struct {
	Username string `json:"username"`
}

type actionData struct {
	Card        *actionCard `json:"card"`
	List        *namedRef   `json:"list"`
	ListBefore  *namedRef   `json:"listBefore"`
	ListAfter   *namedRef   `json:"listAfter"`
	BoardSource *namedRef   `json:"boardSource"`
}

type actionCard struct {
	Name      string `json:"name"`
	ShortLink string `json:"shortLink"`
}

type namedRef struct {
	Name string `json:"name"`
}

// BoardActions fetches the recent action stream of one board and normalizes
// the action types the bot announces. Actions without a card subject are
// skipped.
func (c *Client) BoardActions(ctx context.Context, boardID string) ([]types.RawActivityRecord, error) {
	api := c.apiClient.WithContext(ctx)

	b, err := api.GetBoard(boardID, trello.Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to get board %s: %w", boardID, err)
	}

	var actions []boardAction
	err = api.Get(fmt.Sprintf("boards/%s/actions", boardID), trello.Arguments{"limit": actionPageSize}, &actions)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions for board %s: %w", boardID, err)
	}

	records := make([]types.RawActivityRecord, 0, len(actions))
	for _, action := range actions {
		if action.Data.Card == nil {
			continue
		}
		records = append(records, normalize(action, b.Name))
	}

	return records, nil
}

// normalize turns one Trello action into the record shape shared with the
// GitHub side.
func normalize(action boardAction, boardName string) types.RawActivityRecord {
	rec := types.RawActivityRecord{
		Source:    types.SourceTrello,
		Action:    action.Type,
		SubjectID: action.Data.Card.ShortLink,
		URL:       cardURL(action.Data.Card.ShortLink),
		CreatedAt: action.Date,
		UpdatedAt: action.Date,
		CardName:  action.Data.Card.Name,
		BoardName: boardName,
	}

	// Membership actions are about the affected member, not the acting one.
	switch action.Type {
	case "addMemberToCard", "removeMemberFromCard":
		if action.Member != nil {
			rec.Actor = action.Member.Username
		}
	default:
		if action.MemberCreator != nil {
			rec.Actor = action.MemberCreator.Username
		}
	}

	if action.Data.ListBefore != nil {
		rec.ListBefore = action.Data.ListBefore.Name
	}
	if action.Data.ListAfter != nil {
		rec.ListAfter = action.Data.ListAfter.Name
	}
	if action.Data.BoardSource != nil {
		rec.SourceBoard = action.Data.BoardSource.Name
	}
	if action.Data.List != nil {
		rec.TargetList = action.Data.List.Name
	}

	return rec
}

func cardURL(shortLink string) string {
	return "https://trello.com/c/" + shortLink
}

// ListCards returns the open cards in one list, newest first as Trello
// reports them.
func (c *Client) ListCards(ctx context.Context, listID string) ([]command.Link, error) {
	api := c.apiClient.WithContext(ctx)

	list, err := api.GetList(listID, trello.Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to get list %s: %w", listID, err)
	}

	cards, err := list.GetCards(trello.Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for list %s: %w", listID, err)
	}

	links := make([]command.Link, 0, len(cards))
	for _, card := range cards {
		links = append(links, command.Link{
			Name: card.Name,
			URL:  cardURL(card.ShortLink),
		})
	}
	return links, nil
}

// Member verifies that handle names a real Trello account and returns its
// full display name. The sentinel value "none" is accepted without a
// lookup; the returned error text is meant to be shown to the requesting
// user.
func (c *Client) Member(ctx context.Context, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("No Trello username specified.")
	}
	if strings.EqualFold(handle, "none") {
		return "None", nil
	}

	api := c.apiClient.WithContext(ctx)

	member, err := api.GetMember(handle, trello.Defaults())
	if err != nil {
		c.logger.Error("failed to look up trello member", zap.String("handle", handle), zap.Error(err))
		return "", fmt.Errorf("The name '%s' is not a valid Trello user name.", handle)
	}
	return member.FullName, nil
}
