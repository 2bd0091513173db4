package core

import "errors"

var (
	// ErrEmptyGoal is returned when a run is started without a goal.
	ErrEmptyGoal = errors.New("goal must not be empty")
	// ErrDuplicateAgent is returned when an agent id is registered twice.
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrNoPlanner is returned when a run starts without a registered planner.
	ErrNoPlanner = errors.New("no planner registered")
	// ErrUnknownRole is returned when no agent can be built for a role.
	ErrUnknownRole = errors.New("unknown role")
	// ErrSessionNotFound is returned by session stores for unknown run ids.
	ErrSessionNotFound = errors.New("session not found")
)
