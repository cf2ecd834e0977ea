package httpdto

import "time"

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ToggleReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type ToggleReactionResponse struct {
	MessageID  string `json:"message_id"`
	Emoji      string `json:"emoji"`
	NowPresent bool   `json:"now_present"`
}

type MessageDTO struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Seq       int64     `json:"seq"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
