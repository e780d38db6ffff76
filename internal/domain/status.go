package domain

import (
	"fmt"
	"slices"
)

// EngagementStatus is the lifecycle state of a provider engagement.
type EngagementStatus int

const (
	EngagementRequested EngagementStatus = iota + 1
	EngagementAccepted
	EngagementInProgress
	EngagementCompleted
	EngagementDeclined
	EngagementCancelled
)

var engagementNames = map[EngagementStatus]string{
	EngagementRequested:  "requested",
	EngagementAccepted:   "accepted",
	EngagementInProgress: "in_progress",
	EngagementCompleted:  "completed",
	EngagementDeclined:   "declined",
	EngagementCancelled:  "cancelled",
}

var engagementTransitions = map[EngagementStatus][]EngagementStatus{
	EngagementRequested:  {EngagementAccepted, EngagementDeclined, EngagementCancelled},
	EngagementAccepted:   {EngagementInProgress, EngagementCancelled},
	EngagementInProgress: {EngagementCompleted, EngagementCancelled},
}

func (s EngagementStatus) String() string {
	if n, ok := engagementNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseEngagementStatus maps a wire name to a status.
func ParseEngagementStatus(name string) (EngagementStatus, error) {
	for s, n := range engagementNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("engagement %q: %w", name, ErrUnknownStatus)
}

// Terminal reports whether no further transition is possible.
func (s EngagementStatus) Terminal() bool {
	return len(engagementTransitions[s]) == 0
}

// CanTransitionTo reports whether s may move to next.
func (s EngagementStatus) CanTransitionTo(next EngagementStatus) bool {
	return slices.Contains(engagementTransitions[s], next)
}

// TransitionTo returns next, or ErrInvalidTransition.
func (s EngagementStatus) TransitionTo(next EngagementStatus) (EngagementStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("engagement %s -> %s: %w", s, next, ErrInvalidTransition)
	}
	return next, nil
}

// ParticipationStatus tracks a principal's participation in an engagement.
type ParticipationStatus int

const (
	ParticipationInvited ParticipationStatus = iota + 1
	ParticipationJoined
	ParticipationDeclined
	ParticipationLeft
	ParticipationRemoved
)

var participationNames = map[ParticipationStatus]string{
	ParticipationInvited:  "invited",
	ParticipationJoined:   "joined",
	ParticipationDeclined: "declined",
	ParticipationLeft:     "left",
	ParticipationRemoved:  "removed",
}

var participationTransitions = map[ParticipationStatus][]ParticipationStatus{
	ParticipationInvited: {ParticipationJoined, ParticipationDeclined, ParticipationRemoved},
	ParticipationJoined:  {ParticipationLeft, ParticipationRemoved},
}

func (s ParticipationStatus) String() string {
	if n, ok := participationNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseParticipationStatus maps a wire name to a status.
func ParseParticipationStatus(name string) (ParticipationStatus, error) {
	for s, n := range participationNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("participation %q: %w", name, ErrUnknownStatus)
}

func (s ParticipationStatus) CanTransitionTo(next ParticipationStatus) bool {
	return slices.Contains(participationTransitions[s], next)
}

func (s ParticipationStatus) TransitionTo(next ParticipationStatus) (ParticipationStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("participation %s -> %s: %w", s, next, ErrInvalidTransition)
	}
	return next, nil
}

// ReviewStatus is the moderation state of a provider review.
type ReviewStatus int

const (
	ReviewPending ReviewStatus = iota + 1
	ReviewPublished
	ReviewRejected
	ReviewHidden
)

var reviewNames = map[ReviewStatus]string{
	ReviewPending:   "pending",
	ReviewPublished: "published",
	ReviewRejected:  "rejected",
	ReviewHidden:    "hidden",
}

// Hidden reviews can be republished; rejection is final.
var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewPending:   {ReviewPublished, ReviewRejected},
	ReviewPublished: {ReviewHidden},
	ReviewHidden:    {ReviewPublished},
}

func (s ReviewStatus) String() string {
	if n, ok := reviewNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseReviewStatus maps a wire name to a status.
func ParseReviewStatus(name string) (ReviewStatus, error) {
	for s, n := range reviewNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("review %q: %w", name, ErrUnknownStatus)
}

func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	return slices.Contains(reviewTransitions[s], next)
}

func (s ReviewStatus) TransitionTo(next ReviewStatus) (ReviewStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("review %s -> %s: %w", s, next, ErrInvalidTransition)
	}
	return next, nil
}
