package model

import "time"

type UserID string // internal reference id e.g. 3GFQNuSg3dPqDD1emxv5bqX42oxq
type Handle string // opaque public handle the clients address each other by

type CreateUserParams struct {
	Handle Handle `json:"handle"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type User struct {
	ID        UserID     `db:"id" json:"-"`
	Handle    Handle     `db:"handle" json:"userId"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Verified  bool       `db:"verified" json:"verified"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// Identity is the public view of a user embedded in other payloads.
type Identity struct {
	Handle Handle `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (u *User) Identity() *Identity {
	if u == nil {
		return nil
	}
	return &Identity{Handle: u.Handle, Name: u.Name, Email: u.Email}
}
