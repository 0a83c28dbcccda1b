// ABOUTME: DTOs returned by the Channel Service across the process boundary
// ABOUTME: GroupChannelProfile and GroupMessageDto are JSON-serializable views of the aggregate

package channelservice

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/groupchat-gateway/internal/channel"
)

// UserDto is the minimal user projection carried in DTOs.
type UserDto struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// GroupMessageDto is the bus wire format and the client-facing shape of a
// GroupMessage: {id, channelId, from: {id, name}, kind, payload, createdAt}.
type GroupMessageDto struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channelId"`
	From      *UserDto  `json:"from"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

func toMessageDto(msg channel.Message) GroupMessageDto {
	dto := GroupMessageDto{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Kind:      string(msg.Kind),
		Payload:   msg.Payload,
		CreatedAt: msg.CreatedAt,
	}
	if msg.FromUser != nil {
		dto.From = &UserDto{ID: msg.FromUser.ID, Name: msg.FromUser.Username}
	}
	return dto
}

// GroupChannelProfile is the client-facing view of a channel.
type GroupChannelProfile struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Members   []UserDto         `json:"members"`
	Invited   []UserDto         `json:"invited"`
	Messages  []GroupMessageDto `json:"messages"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func toProfile(ch *channel.Channel) GroupChannelProfile {
	profile := GroupChannelProfile{
		ID:        ch.ID,
		Name:      ch.Name,
		UpdatedAt: ch.UpdatedAt,
	}
	for _, u := range ch.Members {
		profile.Members = append(profile.Members, UserDto{ID: u.ID, Name: u.Username})
	}
	for _, u := range ch.Invited {
		profile.Invited = append(profile.Invited, UserDto{ID: u.ID, Name: u.Username})
	}
	for _, m := range ch.Messages {
		profile.Messages = append(profile.Messages, toMessageDto(m))
	}
	return profile
}
