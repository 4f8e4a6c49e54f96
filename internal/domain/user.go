package domain

import "time"

// User represents a Telegram user who has interacted with the bot.
type User struct {
	UserID     int64     `bson:"user_id" json:"user_id"`
	FirstName  string    `bson:"first_name" json:"first_name"`
	LastName   string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Username   string    `bson:"username,omitempty" json:"username,omitempty"`
	Balance    int64     `bson:"balance" json:"balance"`
	Requests   int64     `bson:"requests" json:"requests"`
	JoinDate   time.Time `bson:"join_date" json:"join_date"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// Profile carries the mutable identity fields observed on an interaction.
type Profile struct {
	UserID    int64
	FirstName string
	LastName  string
	Username  string
}
