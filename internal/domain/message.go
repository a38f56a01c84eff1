package domain

import (
	"strings"
	"time"
)

type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Domain returns the lowercased part after '@', or "" for a malformed address.
func (a Address) Domain() string {
	at := strings.LastIndex(a.Email, "@")
	if at < 0 || at == len(a.Email)-1 {
		return ""
	}
	return strings.ToLower(a.Email[at+1:])
}

// InboundMessage is a fetched mail message. It is ephemeral: scored against
// open requirements and either turned into a MatchRecord or discarded.
type InboundMessage struct {
	ID      string // provider message id, unique per mailbox
	Subject string
	Body    string // plain-text part
	From    Address
	To      []Address
	Date    time.Time
}
