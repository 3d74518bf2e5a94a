// Package sessionstore persists the sessions served by the molsim server.
package sessionstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

// ErrNotFound is returned for an unknown or expired session.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations are safe for concurrent use.
type Store interface {
	// Create starts a session for appID owned by email.
	Create(ctx context.Context, appID, email string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	// Upsert merges outputs into the session, pipe by pipe.
	Upsert(ctx context.Context, id string, outputs wire.Outputs) (Session, error)
	// SetStatus records the step status of widgets.
	SetStatus(ctx context.Context, id string, statuses map[string]workflow.Status) (Session, error)
}

// Session is the stored state of one run.
type Session struct {
	ID        string                         `json:"id"`
	AppID     string                         `json:"appId"`
	Email     string                         `json:"email"`
	CreatedAt time.Time                      `json:"createdAt"`
	UpdatedAt time.Time                      `json:"updatedAt"`
	Widgets   map[string]wire.WidgetSnapshot `json:"widgets"`
}

// Snapshot returns the session as served by GET /session/{id}.
func (s Session) Snapshot() wire.Snapshot {
	return wire.Snapshot{ID: s.ID, AppID: s.AppID, Email: s.Email, Widgets: s.clone().Widgets}
}

func newSession(id, appID, email string, now time.Time) Session {
	return Session{
		ID:        id,
		AppID:     appID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
		Widgets:   map[string]wire.WidgetSnapshot{},
	}
}

func (s Session) clone() Session {
	widgets := make(map[string]wire.WidgetSnapshot, len(s.Widgets))
	for id, w := range s.Widgets {
		widgets[id] = wire.WidgetSnapshot{In: clonePipeDatas(w.In), Out: clonePipeDatas(w.Out), Status: w.Status}
	}
	s.Widgets = widgets

	return s
}

func clonePipeDatas(m map[string]wire.PipeData) map[string]wire.PipeData {
	if m == nil {
		return nil
	}

	res := make(map[string]wire.PipeData, len(m))
	for k, v := range m {
		res[k] = v
	}

	return res
}

// merge returns a copy of s with outputs applied.
func (s Session) merge(outputs wire.Outputs, now time.Time) Session {
	s = s.clone()
	for widgetID, pds := range outputs {
		w := s.Widgets[widgetID]
		if w.Out == nil {
			w.Out = make(map[string]wire.PipeData, len(pds))
		}
		for name, pd := range pds {
			w.Out[name] = pd
		}
		s.Widgets[widgetID] = w
	}
	s.UpdatedAt = now

	return s
}

// withStatus returns a copy of s with statuses applied.
func (s Session) withStatus(statuses map[string]workflow.Status, now time.Time) Session {
	s = s.clone()
	for widgetID, status := range statuses {
		w := s.Widgets[widgetID]
		w.Status = string(status)
		s.Widgets[widgetID] = w
	}
	s.UpdatedAt = now

	return s
}

// ValidateStatuses checks every status is known.
func ValidateStatuses(statuses map[string]workflow.Status) error {
	for widgetID, status := range statuses {
		if _, ok := workflow.ParseStatus(string(status)); !ok {
			return errors.Wrapf(workflow.ErrValidation, "unknown status %q for widget %s", status, widgetID)
		}
	}

	return nil
}
