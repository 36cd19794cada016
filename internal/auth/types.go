package auth

import "time"

// User statuses as stored by the user store.
const (
	StatusDisabled = 0
	StatusActive   = 1
)

// User is an administrative account. The auth core reads it, including
// the password-version counter bound into issued tokens, but never
// mutates it.
type User struct {
	ID              string
	Username        string
	Name            string
	PasswordHash    string
	Status          int
	PasswordVersion int
	DepartmentID    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether the account may establish sessions.
func (u *User) Active() bool {
	return u != nil && u.Status == StatusActive
}

// Role groups permissions and department visibility.
type Role struct {
	ID        string
	Name      string
	Label     string
	Relevance int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is the identity carried by a verified access token.
type Session struct {
	UserID          string
	RoleIDs         []string
	PasswordVersion int
}

// LoginInput is the credential bundle presented by a client.
type LoginInput struct {
	Username   string
	CaptchaID  string
	VerifyCode string
	Password   string
}

// LoginResult carries both issued tokens and their lifetimes in seconds.
type LoginResult struct {
	Expire        int64  `json:"expire"`
	Token         string `json:"token"`
	RefreshExpire int64  `json:"refreshExpire"`
	RefreshToken  string `json:"refreshToken"`
}
