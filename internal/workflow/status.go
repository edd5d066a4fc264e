// Package workflow implements the modification-request lifecycle between a
// buyer and the architect of a licensed design.
package workflow

import (
	"errors"
	"fmt"
)

// Status is a modification request state.
type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusPriced     Status = "PRICED"
	StatusAccepted   Status = "ACCEPTED"
	StatusPaid       Status = "PAID"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusDeclined   Status = "DECLINED"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusRequested, StatusPriced, StatusAccepted, StatusPaid,
		StatusInProgress, StatusDelivered, StatusCompleted, StatusDeclined,
	}
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Actor is the party driving a transition.
type Actor string

const (
	ActorBuyer     Actor = "BUYER"
	ActorArchitect Actor = "ARCHITECT"
	ActorSystem    Actor = "SYSTEM"
)

var ErrInvalidTransition = errors.New("workflow: invalid transition")

var transitions = map[Status][]Status{
	StatusRequested:  {StatusPriced, StatusDeclined},
	StatusPriced:     {StatusAccepted, StatusDeclined},
	StatusAccepted:   {StatusPaid},
	StatusPaid:       {StatusInProgress},
	StatusInProgress: {StatusDelivered},
	StatusDelivered:  {StatusCompleted},
	StatusCompleted:  {},
	StatusDeclined:   {},
}

// eligible lists who may move a request into each status.
var eligible = map[Status][]Actor{
	StatusRequested:  {ActorBuyer},
	StatusPriced:     {ActorArchitect},
	StatusAccepted:   {ActorBuyer},
	StatusPaid:       {ActorSystem},
	StatusInProgress: {ActorArchitect},
	StatusDelivered:  {ActorArchitect},
	StatusCompleted:  {ActorBuyer},
	StatusDeclined:   {ActorBuyer, ActorArchitect},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanActorChangeStatus reports whether actor may move a request into to.
func CanActorChangeStatus(actor Actor, to Status) bool {
	for _, a := range eligible[to] {
		if a == actor {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the destinations reachable from from.
func AllowedTransitions(from Status) []Status {
	return append([]Status(nil), transitions[from]...)
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// ValidateTransition requires both a graph edge and an eligible actor.
func ValidateTransition(from, to Status, actor Actor) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s is not allowed", ErrInvalidTransition, from, to)
	}
	if !CanActorChangeStatus(actor, to) {
		return fmt.Errorf("%w: %s cannot move a request to %s", ErrInvalidTransition, actor, to)
	}
	return nil
}
