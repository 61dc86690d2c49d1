package user

import "strings"

// AdminID is the sender id used for the console side of every conversation
// when no acting identity is known.
const AdminID = "admin"

// DefaultDisplayName is shown when a profile carries neither a name nor an email.
const DefaultDisplayName = "Customer"

// Profile mirrors users/{uid}. It is written by the customer app and only
// read here.
type Profile struct {
	UID          string `json:"uid"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// DisplayName falls back from "first last" to first name, then email, then
// DefaultDisplayName.
func (p *Profile) DisplayName() string {
	if p == nil {
		return DefaultDisplayName
	}
	first := strings.TrimSpace(p.FirstName)
	last := strings.TrimSpace(p.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case strings.TrimSpace(p.Email) != "":
		return strings.TrimSpace(p.Email)
	default:
		return DefaultDisplayName
	}
}

// Summary is the counterparty header shown above an open conversation.
type Summary struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (p *Profile) Summary() Summary {
	return Summary{
		UID:         p.UID,
		DisplayName: p.DisplayName(),
		AvatarURL:   p.ProfileImage,
	}
}

type ProfileResponse struct {
	Profile
	DisplayName string `json:"displayName"`
}
