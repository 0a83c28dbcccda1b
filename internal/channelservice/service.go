// ABOUTME: Channel Service: transactional orchestrator over the Membership Engine and Channel Store
// ABOUTME: Grounded on the teacher's internal/conversation.Service orchestration pattern

package channelservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/groupchat-gateway/internal/bus"
	"github.com/2389/groupchat-gateway/internal/channel"
	"github.com/2389/groupchat-gateway/internal/store"
	"github.com/2389/groupchat-gateway/internal/subject"
)

const maxChannelNameRunes = 120

// Service is the transactional orchestrator described by the spec's Channel
// Service component: it validates inputs, loads aggregates, drives the
// Membership Engine, persists, and publishes resulting messages to the bus.
type Service struct {
	store  store.Store
	bus    bus.Bus
	logger *slog.Logger
}

// New constructs a Service. logger may be nil, in which case slog.Default()
// is used, matching the teacher's nil-logger-falls-back convention.
func New(st store.Store, b bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, bus: b, logger: logger.With("component", "channelservice")}
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%s %q is not a valid id: %w", field, raw, ErrValidation)
	}
	return id, nil
}

func (s *Service) loadUser(ctx context.Context, id uuid.UUID) (channel.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return channel.User{}, fmt.Errorf("user %s: %w", id, ErrUserDoesNotExist)
		}
		return channel.User{}, err
	}
	return *u, nil
}

func (s *Service) loadChannel(ctx context.Context, id uuid.UUID) (*channel.Channel, error) {
	ch, err := s.store.FindChannelByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("channel %s: %w", id, ErrChannelDoesNotExist)
		}
		return nil, err
	}
	return ch, nil
}

// publish addresses the message to every current member's subject, after
// the persisting transaction has already committed. A bus failure is
// logged, not surfaced: the message is already durable in the store.
func (s *Service) publish(ctx context.Context, ch *channel.Channel, msg *channel.Message) {
	dto := toMessageDto(*msg)
	payload, err := json.Marshal(dto)
	if err != nil {
		s.logger.Error("marshaling message for publish", "channel", ch.ID, "error", err)
		return
	}
	for memberID := range ch.Members {
		if err := s.bus.Publish(ctx, subject.Encode(memberID), payload); err != nil {
			s.logger.Warn("bus publish failed", "channel", ch.ID, "member", memberID, "error", err)
		}
	}
}

// CreateChannel validates name and the creating user, runs the create
// transition, and persists.
func (s *Service) CreateChannel(ctx context.Context, fromUserID, name string) (GroupChannelProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxChannelNameRunes {
		return GroupChannelProfile{}, fmt.Errorf("channel name must be 1-%d runes: %w", maxChannelNameRunes, ErrValidation)
	}

	creatorID, err := parseUUID("fromUserId", fromUserID)
	if err != nil {
		return GroupChannelProfile{}, err
	}

	creator, err := s.loadUser(ctx, creatorID)
	if err != nil {
		return GroupChannelProfile{}, err
	}

	ch, err := withOptimisticRetry(ctx, func() (*channel.Channel, error) {
		ch, err := channel.Create(creator, name)
		if err != nil {
			return nil, err
		}
		if err := s.store.Save(ctx, ch); err != nil {
			return nil, err
		}
		return ch, nil
	})
	if err != nil {
		return GroupChannelProfile{}, err
	}

	s.publish(ctx, ch, ch.LastMessage)
	return toProfile(ch), nil
}

// InviteToChannel loads both users and the channel, runs invite, persists,
// and publishes the resulting INVITE message.
func (s *Service) InviteToChannel(ctx context.Context, fromUserID, toUserID, channelID string) (GroupMessageDto, error) {
	return s.runTransition(ctx, fromUserID, toUserID, channelID, func(ch *channel.Channel, inviter, invitee channel.User) (*channel.Message, error) {
		return ch.Invite(inviter, invitee)
	})
}

// AcceptInvitation loads the user and channel, runs accept, persists, and
// publishes the resulting JOIN message.
func (s *Service) AcceptInvitation(ctx context.Context, ofUserID, channelID string) (GroupMessageDto, error) {
	return s.runSelfTransition(ctx, ofUserID, channelID, func(ch *channel.Channel, u channel.User) (*channel.Message, error) {
		return ch.Accept(u)
	})
}

// RemoveFromChannel runs kick, persists, and publishes the resulting KICK
// message.
func (s *Service) RemoveFromChannel(ctx context.Context, fromUserID, targetUserID, channelID string) (GroupMessageDto, error) {
	return s.runTransition(ctx, fromUserID, targetUserID, channelID, func(ch *channel.Channel, actor, target channel.User) (*channel.Message, error) {
		return ch.Kick(actor, target)
	})
}

// LeaveChannel runs leave, persists, and publishes the resulting LEAVE
// message.
func (s *Service) LeaveChannel(ctx context.Context, ofUserID, channelID string) (GroupMessageDto, error) {
	return s.runSelfTransition(ctx, ofUserID, channelID, func(ch *channel.Channel, u channel.User) (*channel.Message, error) {
		return ch.Leave(u)
	})
}

// runTransition is the shared funnel for two-user transitions (invite, kick):
// load both users once, reload the channel fresh on every retry attempt, run
// the transition, persist, then publish once outside the retry loop.
func (s *Service) runTransition(
	ctx context.Context,
	actorUserID, targetUserID, channelIDRaw string,
	transition func(ch *channel.Channel, actor, target channel.User) (*channel.Message, error),
) (GroupMessageDto, error) {
	actorID, err := parseUUID("actorUserId", actorUserID)
	if err != nil {
		return GroupMessageDto{}, err
	}
	targetID, err := parseUUID("targetUserId", targetUserID)
	if err != nil {
		return GroupMessageDto{}, err
	}
	channelID, err := parseUUID("channelId", channelIDRaw)
	if err != nil {
		return GroupMessageDto{}, err
	}

	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return GroupMessageDto{}, err
	}
	target, err := s.loadUser(ctx, targetID)
	if err != nil {
		return GroupMessageDto{}, err
	}

	type result struct {
		ch  *channel.Channel
		msg *channel.Message
	}
	r, err := withOptimisticRetry(ctx, func() (result, error) {
		ch, err := s.loadChannel(ctx, channelID)
		if err != nil {
			return result{}, err
		}
		msg, err := transition(ch, actor, target)
		if err != nil {
			return result{}, err
		}
		if err := s.store.Save(ctx, ch); err != nil {
			return result{}, err
		}
		return result{ch: ch, msg: msg}, nil
	})
	if err != nil {
		return GroupMessageDto{}, err
	}

	s.publish(ctx, r.ch, r.msg)
	return toMessageDto(*r.msg), nil
}

// runSelfTransition is the shared funnel for single-user transitions (accept,
// leave).
func (s *Service) runSelfTransition(
	ctx context.Context,
	userIDRaw, channelIDRaw string,
	transition func(ch *channel.Channel, u channel.User) (*channel.Message, error),
) (GroupMessageDto, error) {
	userID, err := parseUUID("userId", userIDRaw)
	if err != nil {
		return GroupMessageDto{}, err
	}
	channelID, err := parseUUID("channelId", channelIDRaw)
	if err != nil {
		return GroupMessageDto{}, err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return GroupMessageDto{}, err
	}

	type result struct {
		ch  *channel.Channel
		msg *channel.Message
	}
	r, err := withOptimisticRetry(ctx, func() (result, error) {
		ch, err := s.loadChannel(ctx, channelID)
		if err != nil {
			return result{}, err
		}
		msg, err := transition(ch, user)
		if err != nil {
			return result{}, err
		}
		if err := s.store.Save(ctx, ch); err != nil {
			return result{}, err
		}
		return result{ch: ch, msg: msg}, nil
	})
	if err != nil {
		return GroupMessageDto{}, err
	}

	s.publish(ctx, r.ch, r.msg)
	return toMessageDto(*r.msg), nil
}

// GetAllChannels returns a page of profiles for channels ofUserId is a
// member of, updated at or after since.
func (s *Service) GetAllChannels(ctx context.Context, ofUserID string, since time.Time, page, size int) (store.Slice[GroupChannelProfile], error) {
	userID, err := parseUUID("ofUserId", ofUserID)
	if err != nil {
		return store.Slice[GroupChannelProfile]{}, err
	}
	if page < 0 || size < 1 {
		return store.Slice[GroupChannelProfile]{}, fmt.Errorf("page must be >= 0 and size >= 1: %w", ErrValidation)
	}

	slice, err := s.store.FindByMembership(ctx, userID, since, store.PageRequest{Page: page, Size: size})
	if err != nil {
		return store.Slice[GroupChannelProfile]{}, err
	}

	out := store.Slice[GroupChannelProfile]{
		CurrentPage: slice.CurrentPage,
		PageSize:    slice.PageSize,
		HasNext:     slice.HasNext,
	}
	for _, ch := range slice.Items {
		out.Items = append(out.Items, toProfile(ch))
	}
	return out, nil
}

// GetChannelProfile returns the profile only if ofUserId is a member of the
// channel.
func (s *Service) GetChannelProfile(ctx context.Context, ofUserID, channelIDRaw string) (GroupChannelProfile, error) {
	userID, err := parseUUID("ofUserId", ofUserID)
	if err != nil {
		return GroupChannelProfile{}, err
	}
	channelID, err := parseUUID("channelId", channelIDRaw)
	if err != nil {
		return GroupChannelProfile{}, err
	}

	ch, err := s.loadChannel(ctx, channelID)
	if err != nil {
		return GroupChannelProfile{}, err
	}
	if _, ok := ch.Members[userID]; !ok {
		return GroupChannelProfile{}, fmt.Errorf("user %s is not a member of channel %s: %w", userID, channelID, channel.ErrInvalidOperation)
	}

	return toProfile(ch), nil
}
