// ABOUTME: Store interface and shared data types for the group channel subsystem
// ABOUTME: Defines the Channel/User persistence contract and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/2389/groupchat-gateway/internal/channel"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrOptimisticConflict is returned by Save when the channel's version has
// advanced since it was loaded by the caller.
var ErrOptimisticConflict = errors.New("optimistic conflict")

// ErrDuplicateUsername is returned when CreateUser is called with a username
// that is already taken.
var ErrDuplicateUsername = errors.New("username already exists")

// PageRequest is the caller-supplied paging cursor for FindByMembership.
type PageRequest struct {
	Page int
	Size int
}

// Slice is a page of results carrying (currentPage, pageSize, hasNext,
// items) without a total count, matching the spec's Slice glossary entry.
type Slice[T any] struct {
	CurrentPage int
	PageSize    int
	HasNext     bool
	Items       []T
}

// Store defines the persistence contract for users, channels, members, and
// messages. A single Save is all-or-nothing: membership changes and the
// appended message commit together or not at all.
type Store interface {
	// CreateUser persists a new user. Returns ErrDuplicateUsername if the
	// username is already taken.
	CreateUser(ctx context.Context, user channel.User) error
	// GetUser returns ErrNotFound if no user exists with this id.
	GetUser(ctx context.Context, id uuid.UUID) (*channel.User, error)

	// FindChannelByID returns ErrNotFound if no channel exists with this id.
	FindChannelByID(ctx context.Context, id uuid.UUID) (*channel.Channel, error)

	// Save persists the channel aggregate — membership sets and any newly
	// appended messages — atomically. For an existing channel, ch.Version
	// already carries the new version (the membership engine incremented it
	// once after load), so Save expects ch.Version-1 on record and returns
	// ErrOptimisticConflict if the version on record differs; on success
	// the record carries ch.Version.
	Save(ctx context.Context, ch *channel.Channel) error

	// FindByMembership returns channels where user is a current member and
	// UpdatedAt >= since, ordered by UpdatedAt descending, paged. Channels
	// with no members are never returned.
	FindByMembership(ctx context.Context, user uuid.UUID, since time.Time, page PageRequest) (*Slice[*channel.Channel], error)

	// Close releases any resources held by the store.
	Close() error
}
