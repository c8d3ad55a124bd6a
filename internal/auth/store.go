package auth

import "context"

// UserStore describes the account persistence consumed by the HTTP layer.
// Face-embedding writes belong to the time-clock service, not here; this
// store only reads them back as part of the user record.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}
