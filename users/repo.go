package users

import "time"

type UserRepo interface {
	Upsert(user *User) error
	Delete(id string) error
	GetByUsername(username string) (*User, error)
	GetByID(id string) (*User, error)
	List(offset, limit int) ([]*User, error)
	SetBlocked(username string, blocked bool) error
	SetLastLogin(id string, at time.Time) error
}
