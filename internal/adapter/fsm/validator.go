package fsm

import (
	"context"
	"errors"
	"slices"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// Validator checks provisioning lifecycle changes with looplab/fsm. The
// library's machines are stateful, so each call builds a short-lived one
// positioned at the tenant's current status.
type Validator struct {
	events loopfsm.Events
}

// New creates a validator for domain.Transitions.
func New() *Validator {
	return &Validator{events: buildEvents(domain.Transitions)}
}

// buildEvents folds transitions sharing an event and destination into one
// EventDesc with several sources (start from pending and from failed).
func buildEvents(transitions []domain.Transition) loopfsm.Events {
	type key struct{ event, dst string }
	index := make(map[key]int)
	var out loopfsm.Events

	for _, t := range transitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if i, ok := index[k]; ok {
			out[i].Src = append(out[i].Src, string(t.Src))
			continue
		}
		index[k] = len(out)
		out = append(out, loopfsm.EventDesc{Name: k.event, Src: []string{string(t.Src)}, Dst: k.dst})
	}
	return out
}

// Apply returns the status event leads to from current, or a
// *domain.TransitionError when the lifecycle forbids it.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalid loopfsm.InvalidEventError
		var unknown loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{Event: event, Current: current}
		}
		return "", err
	}
	return domain.Status(machine.Current()), nil
}

// Permitted lists the events allowed from current, sorted by name.
func (v *Validator) Permitted(current domain.Status) []domain.Event {
	machine := loopfsm.NewFSM(string(current), v.events, nil)
	names := machine.AvailableTransitions()
	slices.Sort(names)

	out := make([]domain.Event, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Event(n))
	}
	return out
}
