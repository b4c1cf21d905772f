package models

import "time"

// User is an account created on first Google sign-in.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Image     string    `json:"image,omitempty" db:"image"`
	GoogleSub string    `json:"-" db:"google_sub"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Author is the display info recorded on a message.
type Author struct {
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

func (u *User) Author() Author {
	return Author{Name: u.Name, Image: u.Image}
}
