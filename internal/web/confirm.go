package web

import (
	"context"
	"net/http"

	"eventboard/internal/dispatch"
)

// formConfirmer answers the dispatcher from the submitted form. A first
// submission has no answer yet, so the action is recorded and the viewer
// is shown the question; the Yes button resubmits with confirm=yes.
type formConfirmer struct {
	answered bool
	pending  *dispatch.Action
}

func newFormConfirmer(r *http.Request) *formConfirmer {
	return &formConfirmer{answered: r.PostFormValue("confirm") == "yes"}
}

func (c *formConfirmer) RequestConfirmation(_ context.Context, a dispatch.Action) bool {
	if c.answered {
		return true
	}
	c.pending = &a
	return false
}

type hiddenField struct {
	Name  string
	Value string
}

// renderConfirm asks the pending question. Yes reposts fields to action;
// No goes back to cancel without touching the backend.
func (s *Server) renderConfirm(w http.ResponseWriter, r *http.Request, a dispatch.Action, action string, fields []hiddenField, cancel string) {
	data := s.page(w, r, "Please confirm")
	data["Prompt"] = a.Prompt
	data["Action"] = action
	data["Fields"] = fields
	data["Cancel"] = cancel
	s.render(w, http.StatusOK, "confirm.html", data)
}
