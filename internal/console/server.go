// Package console serves the synchronized state to the admin view layer
// over a local JSON API.
package console

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"unigo-console/internal/api"
	"unigo-console/internal/clock"
	"unigo-console/internal/inbox"
	"unigo-console/internal/model"
	"unigo-console/internal/notification"
)

type Session interface {
	User() *model.User
	Loading() bool
	ExpiresAt() (time.Time, bool)
}

type Feed interface {
	Snapshot() notification.Snapshot
	MarkRead(ctx context.Context, id int) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id int) error
}

type Toasts interface {
	Active() []notification.Toast
	Dismiss(id string) bool
}

type Inbox interface {
	Conversations() []model.Conversation
	Select(ctx context.Context, userID int) error
	Thread() inbox.Thread
	Keystroke() error
	Send(ctx context.Context, out inbox.Outgoing) (*model.Message, error)
	UnreadMessages() int
}

type Users interface {
	GetUser(ctx context.Context, id int) (*model.User, error)
	VerifyDocument(ctx context.Context, id int, docKey string, d api.Decision) error
	VerifyPayment(ctx context.Context, id int, verified bool) error
}

type Deps struct {
	Session Session
	Feed    Feed
	Toasts  Toasts
	Inbox   Inbox
	Users   Users
	Clock   clock.Clock
	Logger  logrus.FieldLogger
	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64
}

type Server struct {
	Deps
	log logrus.FieldLogger
}

func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = inbox.DefaultMaxAttachmentBytes
	}
	return &Server{Deps: d, log: logger.WithField("component", "console")}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.getSession)
		r.Get("/gate", s.getGate)

		r.Get("/notifications", s.listNotifications)
		r.Put("/notifications/read-all", s.markAllRead)
		r.Put("/notifications/{id}/read", s.markRead)
		r.Delete("/notifications/{id}", s.deleteNotification)

		r.Get("/toasts", s.listToasts)
		r.Delete("/toasts/{id}", s.dismissToast)

		r.Get("/inbox/conversations", s.listConversations)
		r.Post("/inbox/conversations/{userID}/select", s.selectConversation)
		r.Get("/inbox/thread", s.getThread)
		r.Post("/inbox/typing", s.typing)
		r.Post("/inbox/messages", s.sendMessage)

		r.Get("/users/{id}/verification", s.getVerification)
		r.Put("/users/{id}/documents/{docKey}", s.verifyDocument)
		r.Put("/users/{id}/payment", s.verifyPayment)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps err onto a status and the banner text the view shows.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := api.UserMessage(err)

	cause := errors.Cause(err)
	switch cause {
	case inbox.ErrNoConversation, inbox.ErrEmptyMessage, inbox.ErrAttachmentTooLarge, errBadRequest:
		status = http.StatusBadRequest
	case inbox.ErrThreadLoading, inbox.ErrSendInFlight:
		status = http.StatusConflict
	case errNotFound:
		status = http.StatusNotFound
	default:
		if code := api.StatusCode(err); code != 0 {
			status = code
		} else if api.IsNetwork(err) {
			status = http.StatusBadGateway
		}
	}
	if text, ok := banners[cause]; ok {
		msg = text
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorBody{Error: msg})
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// banners holds the text shown for failures raised inside the console.
var banners = map[error]string{
	errBadRequest:               "Requête invalide",
	errNotFound:                 "Ressource introuvable",
	inbox.ErrNoConversation:     "Aucune conversation sélectionnée",
	inbox.ErrThreadLoading:      "La conversation est en cours de chargement",
	inbox.ErrSendInFlight:       "Un message est déjà en cours d'envoi",
	inbox.ErrEmptyMessage:       "Le message est vide",
	inbox.ErrAttachmentTooLarge: "Le fichier dépasse la taille maximale autorisée",
}

func intParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(errBadRequest, "invalid %s", name)
	}
	return id, nil
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}
