package entity

import "time"

type Role string

const (
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
)

// User is a row in the `users` table. Cpf is nil for accounts created
// through an external identity provider; otherwise it holds exactly 11 digits.
type User struct {
	ID                    string    `db:"id"`
	Username              string    `db:"username"`
	Email                 string    `db:"email"`
	Cpf                   *string   `db:"cpf"`
	PasswordHash          string    `db:"password_hash"`
	FullName              string    `db:"full_name"`
	Role                  Role      `db:"role"`
	Enabled               bool      `db:"enabled"`
	AccountNonExpired     bool      `db:"account_non_expired"`
	AccountNonLocked      bool      `db:"account_non_locked"`
	CredentialsNonExpired bool      `db:"credentials_non_expired"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// Active reports whether every account flag allows authentication.
func (u *User) Active() bool {
	return u.Enabled && u.AccountNonExpired && u.AccountNonLocked && u.CredentialsNonExpired
}

// Principal is what the token layer and request pipeline see of a user.
// It carries no credentials.
type Principal struct {
	ID       string
	Username string
	Role     Role
}

func (p Principal) PrincipalName() string { return p.Username }
func (p Principal) RoleName() string      { return string(p.Role) }

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}

// UserInfo is the public projection returned alongside tokens.
type UserInfo struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	FullName string  `json:"fullName"`
	Role     Role    `json:"role"`
	Cpf      *string `json:"cpf"`
}

func (u *User) Info() UserInfo {
	return UserInfo{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		Cpf:      u.Cpf,
	}
}
