package console

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"unigo-console/internal/api"
	"unigo-console/internal/gate"
	"unigo-console/internal/inbox"
	"unigo-console/internal/model"
	"unigo-console/internal/verification"
)

type sessionView struct {
	Loading   bool        `json:"loading"`
	User      *model.User `json:"user"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	v := sessionView{Loading: s.Session.Loading(), User: s.Session.User()}
	if exp, ok := s.Session.ExpiresAt(); ok {
		v.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getGate(w http.ResponseWriter, r *http.Request) {
	res := gate.Evaluate(gate.Input{
		Loading:      s.Session.Loading(),
		User:         s.Session.User(),
		RequiredRole: model.Role(r.URL.Query().Get("role")),
		Now:          s.Clock.Now(),
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Feed.Snapshot())
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Feed.MarkRead(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Feed.Snapshot())
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Feed.MarkAllRead(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Feed.Snapshot())
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Feed.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Feed.Snapshot())
}

func (s *Server) listToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Toasts.Active())
}

func (s *Server) dismissToast(w http.ResponseWriter, r *http.Request) {
	if !s.Toasts.Dismiss(chi.URLParam(r, "id")) {
		s.writeError(w, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type conversationsView struct {
	Conversations []model.Conversation `json:"conversations"`
	UnreadCount   int                  `json:"unreadCount"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, conversationsView{
		Conversations: s.Inbox.Conversations(),
		UnreadCount:   s.Inbox.UnreadMessages(),
	})
}

func (s *Server) selectConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := intParam(r, "userID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The thread still lands in the loaded state on failure; the view gets
	// the banner text alongside it.
	if err := s.Inbox.Select(r.Context(), userID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Inbox.Thread())
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Inbox.Thread())
}

func (s *Server) typing(w http.ResponseWriter, r *http.Request) {
	if err := s.Inbox.Keystroke(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendRequest struct {
	Content string `json:"content"`
}

// sendMessage accepts either a JSON text body or a multipart form with a
// "file" part and an optional "content" field.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var out inbox.Outgoing
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes+1<<20)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				s.writeError(w, errors.Wrap(inbox.ErrAttachmentTooLarge, err.Error()))
			} else {
				s.writeError(w, errors.Wrap(errBadRequest, err.Error()))
			}
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, header, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, errors.Wrap(errBadRequest, err.Error()))
			return
		}
		defer file.Close()
		out.Content = r.FormValue("content")
		out.Attachment = &inbox.Attachment{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
	} else {
		var req sendRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		out.Content = req.Content
	}

	msg, err := s.Inbox.Send(r.Context(), out)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) loadUser(r *http.Request) (*model.User, error) {
	id, err := intParam(r, "id")
	if err != nil {
		return nil, err
	}
	return s.Users.GetUser(r.Context(), id)
}

func (s *Server) getVerification(w http.ResponseWriter, r *http.Request) {
	u, err := s.loadUser(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification.Evaluate(u))
}

func (s *Server) verifyDocument(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	key := chi.URLParam(r, "docKey")
	if !verification.Known(key) {
		s.writeError(w, errors.Wrapf(errBadRequest, "unknown document %q", key))
		return
	}
	var d api.Decision
	if err := decode(r, &d); err != nil {
		s.writeError(w, err)
		return
	}
	switch d.Status {
	case model.DecisionApproved, model.DecisionRejected, model.DecisionPending:
	default:
		s.writeError(w, errors.Wrapf(errBadRequest, "invalid status %q", d.Status))
		return
	}
	if err := s.Users.VerifyDocument(r.Context(), id, key, d); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondReport(w, r, id)
}

type paymentRequest struct {
	Verified bool `json:"verified"`
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Users.VerifyPayment(r.Context(), id, req.Verified); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondReport(w, r, id)
}

// respondReport refetches the user so the report reflects the decision.
func (s *Server) respondReport(w http.ResponseWriter, r *http.Request, id int) {
	u, err := s.Users.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification.Evaluate(u))
}
