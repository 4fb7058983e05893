package linkedinmessaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a time.Time that travels as epoch milliseconds, the only
// time representation the voyager API uses.
type Timestamp struct {
	time.Time
}

// TimestampOf wraps a time.Time.
func TimestampOf(t time.Time) Timestamp { return Timestamp{t} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("unmarshal timestamp: %w", err)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

// Artifact is one rendition of a vector image.
type Artifact struct {
	Width                         int       `json:"width"`
	Height                        int       `json:"height"`
	FileIdentifyingURLPathSegment string    `json:"fileIdentifyingUrlPathSegment"`
	ExpiresAt                     Timestamp `json:"expiresAt"`
}

// VectorImage is a root URL plus renditions at several sizes.
type VectorImage struct {
	Artifacts []Artifact `json:"artifacts"`
	RootURL   string     `json:"rootUrl"`
}

// Picture is the union wrapper around a profile or group image. The
// namespaced key selects the variant; only vector images appear in
// practice.
type Picture struct {
	VectorImage *VectorImage `json:"com.linkedin.common.VectorImage,omitempty"`
}

// MiniProfile is the abbreviated member profile embedded throughout the
// messaging API.
type MiniProfile struct {
	EntityURN        URN      `json:"entityUrn"`
	PublicIdentifier string   `json:"publicIdentifier"`
	FirstName        string   `json:"firstName,omitempty"`
	LastName         string   `json:"lastName,omitempty"`
	Occupation       string   `json:"occupation,omitempty"`
	Memorialized     bool     `json:"memorialized,omitempty"`
	Picture          *Picture `json:"picture,omitempty"`
}

// MessagingMember is a member as a conversation participant.
type MessagingMember struct {
	MiniProfile    MiniProfile `json:"miniProfile"`
	EntityURN      URN         `json:"entityUrn"`
	AlternateName  string      `json:"alternateName,omitempty"`
	AlternateImage *Picture    `json:"alternateImage,omitempty"`
}

// Paging describes a page of a listing response.
type Paging struct {
	Count int               `json:"count"`
	Start int               `json:"start"`
	Links []json.RawMessage `json:"links"`
}

// TextEntity is a member reference inside attributed text.
type TextEntity struct {
	URN URN `json:"urn"`
}

// AttributeType is the union wrapper for an attribute's kind.
type AttributeType struct {
	TextEntity *TextEntity `json:"com.linkedin.pemberly.text.Entity,omitempty"`
}

// Attribute marks a range of attributed text (e.g. an @-mention).
type Attribute struct {
	Start  int           `json:"start"`
	Length int           `json:"length"`
	Type   AttributeType `json:"type"`
}

// AttributedBody is message text plus its attribute ranges.
type AttributedBody struct {
	Text       string      `json:"text"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// MessageAttachmentCreate describes an uploaded attachment when
// composing a message. UploadMedia returns one ready to send.
type MessageAttachmentCreate struct {
	ByteSize  int    `json:"byteSize"`
	ID        URN    `json:"id"`
	MediaType string `json:"mediaType"`
	Name      string `json:"name"`
}

// MessageAttachmentReference points at the stored attachment blob.
type MessageAttachmentReference struct {
	String string `json:"string"`
}

// MessageAttachment is an attachment on a received message.
type MessageAttachment struct {
	ByteSize  int                        `json:"byteSize"`
	ID        URN                        `json:"id"`
	MediaType string                     `json:"mediaType"`
	Name      string                     `json:"name"`
	Reference MessageAttachmentReference `json:"reference"`
}

// GifInfo is one rendition of a third-party GIF.
type GifInfo struct {
	OriginalHeight int    `json:"originalHeight"`
	OriginalWidth  int    `json:"originalWidth"`
	URL            string `json:"url"`
}

// ThirdPartyMediaInfo carries the renditions of a GIF attachment.
type ThirdPartyMediaInfo struct {
	PreviewGif GifInfo `json:"previewgif"`
	NanoGif    GifInfo `json:"nanogif"`
	Gif        GifInfo `json:"gif"`
}

// ThirdPartyMedia is an embedded third-party media item (GIFs).
type ThirdPartyMedia struct {
	MediaType string              `json:"mediaType"`
	ID        string              `json:"id"`
	Media     ThirdPartyMediaInfo `json:"media"`
	Title     string              `json:"title"`
}

// LegalText is the disclosure text attached to sponsored mail.
type LegalText struct {
	StaticLegalText string `json:"staticLegalText"`
	CustomLegalText string `json:"customLegalText"`
}

// SpInmailStandardSubContent is the call-to-action of a sponsored mail.
type SpInmailStandardSubContent struct {
	Action     string `json:"action"`
	ActionText string `json:"actionText"`
}

// SpInmailSubContent is the union wrapper for sponsored-mail
// sub-content variants.
type SpInmailSubContent struct {
	Standard *SpInmailStandardSubContent `json:"com.linkedin.voyager.messaging.event.message.spinmail.SpInmailStandardSubContent,omitempty"`
}

// SpInmailContent is a sponsored mail body.
type SpInmailContent struct {
	Status          string              `json:"status"`
	SpInmailType    string              `json:"spInmailType"`
	AdvertiserLabel string              `json:"advertiserLabel"`
	Body            string              `json:"body"`
	LegalText       *LegalText          `json:"legalText,omitempty"`
	SubContent      *SpInmailSubContent `json:"subContent,omitempty"`
}

// MessageCustomContent is the union of non-text message payloads.
type MessageCustomContent struct {
	ThirdPartyMedia *ThirdPartyMedia `json:"com.linkedin.voyager.messaging.shared.ThirdPartyMedia,omitempty"`
	SpInmailContent *SpInmailContent `json:"com.linkedin.voyager.messaging.event.message.spinmail.SpInmailContent,omitempty"`
}

// MessageEvent is the message payload of a conversation event.
// RecalledAt is set once the sender has redacted the message.
type MessageEvent struct {
	Body                    string                `json:"body"`
	MessageBodyRenderFormat string                `json:"messageBodyRenderFormat,omitempty"`
	Subject                 string                `json:"subject,omitempty"`
	AttributedBody          *AttributedBody       `json:"attributedBody,omitempty"`
	Attachments             []MessageAttachment   `json:"attachments,omitempty"`
	CustomContent           *MessageCustomContent `json:"customContent,omitempty"`
	RecalledAt              *Timestamp            `json:"recalledAt,omitempty"`
}

// EventContent is the union of conversation event payloads, selected by
// which namespaced key is present.
type EventContent struct {
	MessageEvent *MessageEvent `json:"com.linkedin.voyager.messaging.event.MessageEvent,omitempty"`
}

// From is the union wrapper around an event's sender.
type From struct {
	MessagingMember *MessagingMember `json:"com.linkedin.voyager.messaging.MessagingMember,omitempty"`
}

// Participant is the union wrapper around a conversation participant.
type Participant struct {
	MessagingMember *MessagingMember `json:"com.linkedin.voyager.messaging.MessagingMember,omitempty"`
}

// ReactionSummary aggregates one emoji's reactions on a message.
type ReactionSummary struct {
	Count          int       `json:"count"`
	FirstReactedAt Timestamp `json:"firstReactedAt"`
	Emoji          string    `json:"emoji"`
	ViewerReacted  bool      `json:"viewerReacted"`
}

// ConversationEvent is one event (usually a message) in a conversation.
type ConversationEvent struct {
	CreatedAt                   Timestamp         `json:"createdAt"`
	EntityURN                   URN               `json:"entityUrn"`
	EventContent                EventContent      `json:"eventContent"`
	Subtype                     string            `json:"subtype"`
	From                        From              `json:"from"`
	PreviousEventInConversation *URN              `json:"previousEventInConversation,omitempty"`
	ReactionSummaries           []ReactionSummary `json:"reactionSummaries,omitempty"`
}

// Conversation is one entry in the conversation listing.
type Conversation struct {
	GroupChat       bool                `json:"groupChat"`
	TotalEventCount int                 `json:"totalEventCount"`
	UnreadCount     int                 `json:"unreadCount"`
	LastActivityAt  Timestamp           `json:"lastActivityAt"`
	EntityURN       URN                 `json:"entityUrn"`
	Muted           bool                `json:"muted"`
	Events          []ConversationEvent `json:"events"`
	Participants    []Participant       `json:"participants"`
}

// ConversationsResponse is a page of the conversation listing.
type ConversationsResponse struct {
	Elements []Conversation `json:"elements"`
	Paging   Paging         `json:"paging"`
}

// ConversationResponse is a page of one conversation's events.
type ConversationResponse struct {
	Elements []ConversationEvent `json:"elements"`
	Paging   Paging              `json:"paging"`
}

// MessageCreate is an outgoing message.
type MessageCreate struct {
	AttributedBody AttributedBody            `json:"attributedBody"`
	Body           string                    `json:"body"`
	Attachments    []MessageAttachmentCreate `json:"attachments,omitempty"`
}

// MessageCreatedInfo identifies a freshly created message.
type MessageCreatedInfo struct {
	CreatedAt              Timestamp `json:"createdAt"`
	EventURN               URN       `json:"eventUrn"`
	BackendEventURN        URN       `json:"backendEventUrn"`
	ConversationURN        URN       `json:"conversationUrn"`
	BackendConversationURN URN       `json:"backendConversationUrn"`
}

// SendMessageResponse wraps the created-message info.
type SendMessageResponse struct {
	Value MessageCreatedInfo `json:"value"`
}

// UserProfileResponse is the caller's own profile.
type UserProfileResponse struct {
	PlainID     string      `json:"plainId"`
	MiniProfile MiniProfile `json:"miniProfile"`
}

// Reactor is one member who reacted to a message.
type Reactor struct {
	ReactorURN URN `json:"reactorUrn"`
}

// ReactorsResponse lists the members who reacted with one emoji.
type ReactorsResponse struct {
	Elements []Reactor `json:"elements"`
	Paging   Paging    `json:"paging"`
}

// RealtimeEvent is the decoded payload of one realtime stream event.
// Which fields are populated depends on the payload key the event
// arrived under: "event" carries message events, "reactionSummary" and
// "reactionAdded" carry reaction updates.
type RealtimeEvent struct {
	PreviousEventInConversation *URN               `json:"previousEventInConversation,omitempty"`
	Event                       *ConversationEvent `json:"event,omitempty"`

	ReactionAdded       *bool            `json:"reactionAdded,omitempty"`
	ActorMiniProfileURN *URN             `json:"actorMiniProfileUrn,omitempty"`
	EventURN            *URN             `json:"eventUrn,omitempty"`
	ReactionSummary     *ReactionSummary `json:"reactionSummary,omitempty"`
	ViewerReacted       *bool            `json:"viewerReacted,omitempty"`
}
