package linkedinmessaging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// conversationPageSize is the fixed page size the service returns for
// conversation listings. A shorter page marks the end of the listing.
const conversationPageSize = 20

// millis renders a time as the epoch-millisecond string the API expects
// in query parameters, defaulting to now for the zero time.
func millis(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// GetConversations fetches one page of the caller's conversations,
// newest first, holding conversations whose last activity predates
// lastActivityBefore (zero means now).
func (c *Client) GetConversations(ctx context.Context, lastActivityBefore time.Time) (*ConversationsResponse, error) {
	params := url.Values{
		"keyVersion": {"LEGACY_INBOX"},
		// The service keys this cursor as createdBefore even though it
		// filters on last activity.
		"createdBefore": {millis(lastActivityBefore)},
	}
	resp, err := c.get(ctx, "/messaging/conversations", params)
	if err != nil {
		return nil, err
	}
	return decodeResponse[ConversationsResponse](resp)
}

// GetAllConversations pages through the full conversation listing. The
// listing is complete once a page comes back shorter than the fixed
// page size.
func (c *Client) GetAllConversations(ctx context.Context) ([]Conversation, error) {
	var all []Conversation
	cursor := time.Now()
	for {
		page, err := c.GetConversations(ctx, cursor)
		if err != nil {
			return all, err
		}
		all = append(all, page.Elements...)
		if len(page.Elements) < conversationPageSize {
			return all, nil
		}
		cursor = page.Elements[len(page.Elements)-1].LastActivityAt.Time
	}
}

// GetConversation fetches one page of a conversation's events created
// before createdBefore (zero means now). The conversation URN must
// carry exactly one id part; compound URNs fail with ErrInvalidURN
// before any network traffic.
func (c *Client) GetConversation(ctx context.Context, conversationURN URN, createdBefore time.Time) (*ConversationResponse, error) {
	id, err := conversationURN.ID()
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	params := url.Values{"createdBefore": {millis(createdBefore)}}
	resp, err := c.get(ctx, "/messaging/conversations/"+url.PathEscape(id)+"/events", params)
	if err != nil {
		return nil, err
	}
	return decodeResponse[ConversationResponse](resp)
}

// messageCreateUnion wraps an outgoing message under its namespaced
// variant key.
type messageCreateUnion struct {
	MessageCreate *MessageCreate `json:"com.linkedin.voyager.messaging.create.MessageCreate,omitempty"`
}

// eventCreate is the create-event envelope. The origin token lets the
// service deduplicate a resubmitted create.
type eventCreate struct {
	OriginToken string             `json:"originToken"`
	Value       messageCreateUnion `json:"value"`
}

// messageEventCreate is the body of a message send. Recipients and
// Subtype are set only when creating a fresh conversation.
type messageEventCreate struct {
	EventCreate eventCreate `json:"eventCreate"`
	Recipients  []string    `json:"recipients,omitempty"`
	Subtype     string      `json:"subtype,omitempty"`
}

// conversationCreate is the body of a send that opens a new
// conversation with an ad-hoc recipient set.
type conversationCreate struct {
	KeyVersion         string             `json:"keyVersion"`
	ConversationCreate messageEventCreate `json:"conversationCreate"`
}

// SendMessage posts a message to an existing conversation.
func (c *Client) SendMessage(ctx context.Context, conversationURN URN, message MessageCreate) (*SendMessageResponse, error) {
	id, err := conversationURN.ID()
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	payload := messageEventCreate{
		EventCreate: eventCreate{
			OriginToken: uuid.NewString(),
			Value:       messageCreateUnion{MessageCreate: &message},
		},
	}
	resp, err := c.postJSON(ctx, "/messaging/conversations/"+url.PathEscape(id)+"/events",
		url.Values{"action": {"create"}}, payload)
	if err != nil {
		return nil, err
	}
	return decodeResponse[SendMessageResponse](resp)
}

// SendMessageToRecipients sends a message to an ad-hoc recipient set,
// creating the member-to-member conversation as a side effect. Each
// recipient URN must carry a single id part.
func (c *Client) SendMessageToRecipients(ctx context.Context, recipients []URN, message MessageCreate) (*SendMessageResponse, error) {
	ids := make([]string, len(recipients))
	for i, r := range recipients {
		id, err := r.ID()
		if err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
		ids[i] = id
	}
	payload := conversationCreate{
		KeyVersion: "LEGACY_INBOX",
		ConversationCreate: messageEventCreate{
			EventCreate: eventCreate{
				OriginToken: uuid.NewString(),
				Value:       messageCreateUnion{MessageCreate: &message},
			},
			Recipients: ids,
			Subtype:    "MEMBER_TO_MEMBER",
		},
	}
	resp, err := c.postJSON(ctx, "/messaging/conversations",
		url.Values{"action": {"create"}}, payload)
	if err != nil {
		return nil, err
	}
	return decodeResponse[SendMessageResponse](resp)
}

// DeleteMessage recalls (redacts) a message the caller sent. The
// message URN may be compound; its last id part names the event.
func (c *Client) DeleteMessage(ctx context.Context, conversationURN, messageURN URN) error {
	id, err := conversationURN.ID()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	resp, err := c.postJSON(ctx,
		"/messaging/conversations/"+url.PathEscape(id)+"/events/"+url.PathEscape(messageURN.LastID()),
		url.Values{"action": {"recall"}}, nil)
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusNoContent)
}

// emojiBody is the request body of reaction operations.
type emojiBody struct {
	Emoji string `json:"emoji"`
}

// reactToMessage issues a reaction action (react/unreact) on an event.
func (c *Client) reactToMessage(ctx context.Context, conversationURN, messageURN URN, emoji, action string) error {
	id, err := conversationURN.ID()
	if err != nil {
		return fmt.Errorf("reaction: %w", err)
	}
	resp, err := c.postJSON(ctx,
		"/messaging/conversations/"+url.PathEscape(id)+"/events/"+url.PathEscape(messageURN.LastID()),
		url.Values{"action": {action}}, emojiBody{Emoji: emoji})
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusNoContent)
}

// AddEmojiReaction reacts to a message with an emoji.
func (c *Client) AddEmojiReaction(ctx context.Context, conversationURN, messageURN URN, emoji string) error {
	return c.reactToMessage(ctx, conversationURN, messageURN, emoji, "reactWithEmoji")
}

// RemoveEmojiReaction removes the caller's emoji reaction from a message.
func (c *Client) RemoveEmojiReaction(ctx context.Context, conversationURN, messageURN URN, emoji string) error {
	return c.reactToMessage(ctx, conversationURN, messageURN, emoji, "unreactWithEmoji")
}

// readPatch is the body of MarkConversationAsRead.
type readPatch struct {
	Patch struct {
		Set struct {
			Read bool `json:"read"`
		} `json:"$set"`
	} `json:"patch"`
}

// MarkConversationAsRead clears a conversation's unread state.
func (c *Client) MarkConversationAsRead(ctx context.Context, conversationURN URN) error {
	id, err := conversationURN.ID()
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	var body readPatch
	body.Patch.Set.Read = true
	resp, err := c.postJSON(ctx, "/messaging/conversations/"+url.PathEscape(id), nil, body)
	if err != nil {
		return err
	}
	return expectStatus(resp, http.StatusOK)
}

// GetReactors lists the members who reacted to a message with the
// given emoji.
func (c *Client) GetReactors(ctx context.Context, messageURN URN, emoji string) (*ReactorsResponse, error) {
	params := url.Values{
		"q":          {"message"},
		"messageUrn": {messageURN.String()},
		"emoji":      {emoji},
	}
	resp, err := c.get(ctx, "/messaging/messagingDashMessengerReactionParticipants", params)
	if err != nil {
		return nil, err
	}
	return decodeResponse[ReactorsResponse](resp)
}
