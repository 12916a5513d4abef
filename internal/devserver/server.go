// Package devserver is a local stand-in for the unigo backend: enough of
// the REST surface and realtime channel for the console to run against
// without the production stack.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"unigo-console/internal/model"
	"unigo-console/internal/realtime"
)

const maxUploadBytes = 10 << 20

type Options struct {
	JWTSecret string
	// Redis, when set, relays realtime events between instances.
	Redis  *redis.Client
	Logger logrus.FieldLogger
}

type Server struct {
	store *Store
	auth  *Auth
	hub   *Hub
	log   logrus.FieldLogger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := NewStore()
	return &Server{
		store: store,
		auth:  NewAuth(store, opts.JWTSecret),
		hub:   NewHub(opts.Redis, logger),
		log:   logger.WithField("component", "devserver"),
	}
}

func (s *Server) Store() *Store { return s.store }
func (s *Server) Auth() *Auth   { return s.auth }

// Run drives the realtime hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Push delivers a server event to every connection of userID.
func (s *Server) Push(userID int, event string, data interface{}) error {
	return s.hub.Push(userID, event, data)
}

func (s *Server) Online(userID int) bool { return s.hub.Online(userID) }

// Notify stores a notification for userID and pushes it live.
func (s *Server) Notify(userID int, n model.Notification) model.Notification {
	n = s.store.AddNotification(userID, n)
	if err := s.hub.Push(userID, realtime.EventNewNotification, n); err != nil {
		s.log.WithError(err).Warn("push notification")
	}
	return n
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(s.auth.authenticate).Get("/socket", s.serveSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/register", s.register)
		r.Get("/districts", s.listDistricts)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.authenticate)
			r.Get("/auth/profile", s.profile)
			r.Put("/auth/profile", s.updateProfile)

			r.Get("/notifications", s.listNotifications)
			r.Put("/notifications/read-all", s.markAllRead)
			r.Put("/notifications/{id}/read", s.markRead)
			r.Delete("/notifications/{id}", s.deleteNotification)

			r.Get("/messages/conversations", s.conversations)
			r.Get("/messages/unread/count", s.unreadCount)
			r.Post("/messages/send", s.sendMessage)
			r.Get("/messages/{userID}", s.history)

			r.With(requireAdmin).Post("/districts", s.saveDistrict)
			r.With(requireAdmin).Put("/districts/{id}", s.saveDistrict)
			r.With(requireAdmin).Delete("/districts/{id}", s.deleteDistrict)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/users", s.listUsers)
				r.Post("/users", s.createUser)
				r.Get("/users/{id}", s.getUser)
				r.Put("/users/{id}", s.updateUser)
				r.Delete("/users/{id}", s.deleteUser)
				r.Get("/users/{id}/documents", s.userDocuments)
				r.Put("/users/{id}/verify-document/{docKey}", s.verifyDocument)
				r.Put("/users/{id}/verify-documents", s.verifyDocuments)
				r.Put("/users/{id}/verify-payment", s.verifyPayment)
				r.Put("/users/{id}/status", s.updateStatus)
				r.Get("/recharge/requests", s.listRecharges)
				r.Put("/recharge/requests/{id}/approve", s.approveRecharge)
				r.Put("/recharge/requests/{id}/reject", s.rejectRecharge)

				r.Get("/universities", s.listUniversities)
				r.Post("/universities", s.saveUniversity)
				r.Put("/universities/{id}", s.saveUniversity)
				r.Delete("/universities/{id}", s.deleteUniversity)

				r.Get("/incidents", s.listIncidents)
				r.Put("/incidents/{id}", s.updateIncident)
				r.Delete("/incidents/{id}", s.deleteIncident)
			})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case ErrUserNotFound, ErrNotFound:
		writeError(w, http.StatusNotFound, errors.Cause(err).Error())
	case ErrEmailTaken:
		writeError(w, http.StatusConflict, err.Error())
	case ErrInvalidCredentials:
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func idParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, errors.Errorf("%s invalide", name)
	}
	return id, nil
}

func me(r *http.Request) int {
	return claimsFrom(r.Context()).ID
}

// Auth

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.auth.Login(creds)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.auth.Register(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Notify(res.User.ID, model.Notification{Type: model.NotificationWelcome, Title: "Bienvenue sur unigo"})
	writeJSON(w, http.StatusCreated, res)
}

type userEnvelope struct {
	User model.User `json:"user"`
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.User(me(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.UpdateUser(me(r), func(u *model.User) {
		if upd.FirstName != nil {
			u.FirstName = *upd.FirstName
		}
		if upd.LastName != nil {
			u.LastName = *upd.LastName
		}
		if upd.Phone != nil {
			u.Phone = *upd.Phone
		}
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

// Notifications

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, s.store.Notifications(me(r), limit))
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.store.MarkNotificationRead(me(r), id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	s.store.MarkAllNotificationsRead(me(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.store.DeleteNotification(me(r), id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Messages

func (s *Server) conversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": s.store.Conversations(me(r))})
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.store.UnreadMessages(me(r))})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	other, err := idParam(r, "userID")
	if err != nil {
		s.fail(w, err)
		return
	}
	msgs, marked := s.store.Thread(me(r), other)
	if marked {
		if err := s.hub.Push(other, realtime.EventMessagesRead, map[string]int{"readerId": me(r)}); err != nil {
			s.log.WithError(err).Warn("push messages_read")
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Fichier trop volumineux")
		return
	}
	defer r.MultipartForm.RemoveAll()

	receiver, err := strconv.Atoi(r.FormValue("receiver_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "receiver_id invalide")
		return
	}
	m := model.Message{
		Sender:   model.UserRef{ID: me(r)},
		Receiver: model.UserRef{ID: receiver},
		Type:     model.MessageType(r.FormValue("message_type")),
		Content:  r.FormValue("content"),
	}
	if m.Type == "" {
		m.Type = model.MessageText
	}

	if file, header, err := r.FormFile("file"); err == nil {
		size, _ := io.Copy(io.Discard, file)
		file.Close()
		m.FileName = header.Filename
		m.FileSize = size
		m.FileURL = fmt.Sprintf("%s-%s", uuid.NewString(), header.Filename)
	} else if m.Type != model.MessageText {
		writeError(w, http.StatusBadRequest, "Fichier manquant")
		return
	} else if m.Content == "" {
		writeError(w, http.StatusBadRequest, "Message vide")
		return
	}

	m, err = s.store.AddMessage(m)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.hub.Push(receiver, realtime.EventNewMessage, m); err != nil {
		s.log.WithError(err).Warn("push new_message")
	}
	s.Notify(receiver, model.Notification{
		Type:    model.NotificationMessage,
		Title:   "Nouveau message",
		Message: m.Content,
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": m})
}
