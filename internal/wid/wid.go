// Package wid implements the wire identifier format used to address
// chats, contacts and group participants, plus a best-effort cache that
// maps ephemeral lid identifiers back to stable phone-number ones.
//
// The canonical string form is user[_agent][:device]@server. Agent and
// device are optional numeric suffixes; a suffix that does not parse as a
// number is treated as part of the user.
package wid

import (
	"strconv"
	"strings"
)

// Known servers.
const (
	DefaultServer    = "s.whatsapp.net"
	LegacyServer     = "c.us"
	GroupServer      = "g.us"
	BroadcastServer  = "broadcast"
	NewsletterServer = "newsletter"
	LIDServer        = "lid"
	HostedServer     = "hosted"
	HostedLIDServer  = "hosted.lid"
)

// DomainType discriminates the addressing domain an identifier belongs to.
type DomainType int

const (
	DomainUser DomainType = iota
	DomainLID
	DomainHosted
	DomainHostedLID
)

// JID is the decoded form of a wire identifier.
type JID struct {
	User   string
	Server string
	Device uint16
	Agent  uint8
	Domain DomainType
}

// Encode builds the canonical string form. Zero agent and device are
// omitted.
func Encode(user, server string, device uint16, agent uint8) string {
	var b strings.Builder
	b.WriteString(user)
	if agent != 0 {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(int(agent)))
	}
	if device != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(device)))
	}
	b.WriteByte('@')
	b.WriteString(server)
	return b.String()
}

// String returns the canonical string form.
func (j JID) String() string {
	return Encode(j.User, j.Server, j.Device, j.Agent)
}

// IsEphemeral reports whether the identifier belongs to a lid domain.
func (j JID) IsEphemeral() bool {
	return j.Domain == DomainLID || j.Domain == DomainHostedLID
}

// Decode splits an identifier on its first "@". It fails only when no "@"
// is present.
func Decode(id string) (JID, bool) {
	sep := strings.Index(id, "@")
	if sep < 0 {
		return JID{}, false
	}
	j := JID{Server: id[sep+1:]}
	user := id[:sep]

	if i := strings.Index(user, ":"); i >= 0 {
		if d, err := strconv.ParseUint(user[i+1:], 10, 16); err == nil {
			j.Device = uint16(d)
			user = user[:i]
		}
	}
	if i := strings.Index(user, "_"); i >= 0 {
		if a, err := strconv.ParseUint(user[i+1:], 10, 8); err == nil {
			j.Agent = uint8(a)
			user = user[:i]
		}
	}
	j.User = user
	j.Domain = domainOf(j.Server, j.Agent)
	return j, true
}

func domainOf(server string, agent uint8) DomainType {
	switch server {
	case LIDServer:
		return DomainLID
	case HostedServer:
		return DomainHosted
	case HostedLIDServer:
		return DomainHostedLID
	}
	if agent != 0 {
		return DomainType(agent)
	}
	return DomainUser
}

// Normalize re-encodes an identifier without its device and agent
// suffixes, mapping the legacy c.us alias to the canonical phone-number
// server. Dropping the agent is deliberate: like the device, it only
// addresses an endpoint of the account, and entities here are keyed per
// account. Returns "" when id cannot be decoded.
func Normalize(id string) string {
	j, ok := Decode(id)
	if !ok {
		return ""
	}
	server := j.Server
	if server == LegacyServer {
		server = DefaultServer
	}
	return Encode(j.User, server, 0, 0)
}

// TransferDevice applies the device suffix of from to the user and server
// of to. Returns "" when either identifier cannot be decoded.
func TransferDevice(from, to string) string {
	f, ok := Decode(from)
	if !ok {
		return ""
	}
	t, ok := Decode(to)
	if !ok {
		return ""
	}
	return Encode(t.User, t.Server, f.Device, 0)
}
