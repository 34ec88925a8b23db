package domain

import "errors"

var (
	// ErrPlayerNotFound is returned when the referenced player does not exist.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrLevelNotFound indicates a level number outside the static catalog.
	ErrLevelNotFound = errors.New("level not found")
	// ErrMilestoneNotFound indicates an unknown milestone id.
	ErrMilestoneNotFound = errors.New("milestone not found")
	// ErrInvalidInput rejects malformed requests before any persistence call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLevelLocked is returned when a player attempts a level beyond their pointer.
	ErrLevelLocked = errors.New("level not yet unlocked")
	// ErrMilestoneNotReached rejects a grant for a band the player has not cleared.
	// Recoverable: the caller may re-evaluate and retry.
	ErrMilestoneNotReached = errors.New("milestone not reached")
	// ErrMilestoneClaimed rejects a duplicate grant of an already claimed milestone.
	ErrMilestoneClaimed = errors.New("milestone already claimed")
)
