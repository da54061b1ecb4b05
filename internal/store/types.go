package store

import "time"

// User is the profile projection read for authentication fallback and
// outbound enrichment. Profiles are owned by the registration collaborator;
// this core never writes them.
type User struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Group carries the membership data this core reads on every group-scoped
// event. Groups are owned by the list-management collaborator; only
// LastMessageID is written here.
type Group struct {
	ID            string
	Name          string
	MemberIDs     []string
	AdminIDs      []string
	LastMessageID string
}

// IsMember reports whether userID is in the group's member set.
func (g *Group) IsMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message. Body and author are immutable after
// insert; only reactions, read, and delivery state change afterwards.
// Body holds the text for kind "text" and the media URL for the other kinds.
type Message struct {
	ID        string
	GroupID   string
	AuthorID  string
	Kind      string
	Body      string
	FileName  string
	ReplyTo   string // empty when the message is not a reply
	ClientKey string // empty when the client supplied no idempotency key
	CreatedAt time.Time
}

// Reaction is one (message, emoji, user) fact. The triple is the primary key,
// so a user reacts with a given emoji at most once per message.
type Reaction struct {
	MessageID string
	Emoji     string
	UserID    string
	CreatedAt time.Time
}
