package models

// LandingEntry is one (session, album) pair a client can open
type LandingEntry struct {
	SessionID  string `json:"sessionId"`
	Token      string `json:"token"`
	AlbumID    int64  `json:"albumId"`
	AlbumTitle string `json:"albumTitle,omitempty"`
	MagicLink  string `json:"magicLink"`
	IsPrimary  bool   `json:"isPrimary"`
}

// LandingBundle lists everything a client can reach through any of their tokens
type LandingBundle struct {
	Client      *Client        `json:"client"`
	LandingLink string         `json:"landingLink"`
	Sessions    []LandingEntry `json:"sessions"`
}

// SessionAlbum pairs a session with an album it can see, either as its
// primary album or through a grant.
type SessionAlbum struct {
	Session *Session
	AlbumID int64
}

// DigestRecipient is one email address to notify about an album, with all
// magic links its sessions hold for that album.
type DigestRecipient struct {
	Email       string
	Name        string
	Links       []string
	LandingLink string
}

// SessionContact is a session joined with its linked client's contact fields
type SessionContact struct {
	Session     *Session
	ClientEmail *string
	ClientName  *string
}

// Email prefers the linked client's address over one captured on the session
func (c *SessionContact) Email() string {
	var clientEmail, sessionEmail string
	if c.ClientEmail != nil {
		clientEmail = *c.ClientEmail
	}
	if c.Session.ClientEmail != nil {
		sessionEmail = *c.Session.ClientEmail
	}
	return NormalizeEmail(FirstNonEmpty(clientEmail, sessionEmail))
}

// Name prefers the linked client's name over the session snapshot
func (c *SessionContact) Name() string {
	var clientName, sessionName string
	if c.ClientName != nil {
		clientName = *c.ClientName
	}
	if c.Session.ClientName != nil {
		sessionName = *c.Session.ClientName
	}
	return FirstNonEmpty(clientName, sessionName)
}
