package model

// User is one registered account. PasswordHash and VerificationCode never
// leave the server.
type User struct {
	ID               int64   `json:"id"`
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	PasswordHash     string  `json:"-"`
	Verified         bool    `json:"verified"`
	VerificationCode *string `json:"-"`
	Biography        *string `json:"biography"`
}

// Chat is an unordered pair of usernames. The store canonicalizes the pair
// at write time: the lexicographically smaller username is always
// FirstUserName.
type Chat struct {
	ID             int64  `json:"id"`
	FirstUserName  string `json:"first_user_name"`
	SecondUserName string `json:"second_user_name"`
	LastUpdate     int64  `json:"last_update"`
}

type Message struct {
	ID             int64   `json:"id"`
	ChatID         int64   `json:"chat_id"`
	Email          string  `json:"email"`
	Username       string  `json:"username"`
	Message        string  `json:"message"`
	RepliedUser    *string `json:"replied_user"`
	RepliedMessage *string `json:"replied_message"`
	Time           int64   `json:"time"`
	Edited         bool    `json:"edited"`
}

type Friendship struct {
	ID               int64  `json:"id"`
	SenderUsername   string `json:"sender_username"`
	ReceiverUsername string `json:"receiver_username"`
	Status           string `json:"status"`
}

const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
)
