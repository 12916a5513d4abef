package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"unigo-console/internal/api"
	"unigo-console/internal/model"
	"unigo-console/internal/verification"
)

type decision struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func validDecision(status string) bool {
	switch status {
	case model.DecisionApproved, model.DecisionRejected, model.DecisionPending:
		return true
	}
	return false
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.UserFilter{
		Role:   model.Role(q.Get("role")),
		Status: model.AccountStatus(q.Get("status")),
		Search: q.Get("search"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}

	all := s.store.Users(f)
	list := model.UserList{Users: []model.User{}, Page: model.Page{Page: f.Page, Limit: f.Limit, Total: len(all)}}
	start := (f.Page - 1) * f.Limit
	if start < len(all) {
		end := start + f.Limit
		if end > len(all) {
			end = len(all)
		}
		list.Users = append(list.Users, all[start:end]...)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.store.User(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email et mot de passe requis")
		return
	}
	res, err := s.auth.Register(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userEnvelope{res.User})
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var upd api.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.UpdateUser(id, func(u *model.User) {
		if upd.FirstName != nil {
			u.FirstName = *upd.FirstName
		}
		if upd.LastName != nil {
			u.LastName = *upd.LastName
		}
		if upd.Phone != nil {
			u.Phone = *upd.Phone
		}
		if upd.Role != nil {
			u.Role = *upd.Role
		}
		if upd.UniversityID != nil {
			u.UniversityID = *upd.UniversityID
		}
		if upd.DistrictID != nil {
			u.DistrictID = *upd.DistrictID
		}
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if id == me(r) {
		writeError(w, http.StatusBadRequest, "Vous ne pouvez pas supprimer votre propre compte")
		return
	}
	if err := s.store.DeleteUser(id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) userDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.store.User(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	docs := u.Documents
	if docs == nil {
		docs = map[string]string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// settle recomputes the flags the backend derives from per-document
// decisions.
func settle(u *model.User) {
	rep := verification.Evaluate(u)
	u.DocumentsVerified = rep.Aggregate == verification.StatusVerified
	if u.Status == model.StatusPendingVerification || u.Status == model.StatusPendingPayment || u.Status == model.StatusActive {
		u.Status = rep.Readiness
	}
}

func (s *Server) verifyDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	key := chi.URLParam(r, "docKey")
	var d decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil || !validDecision(d.Status) || !verification.Known(key) {
		writeError(w, http.StatusBadRequest, "Décision invalide")
		return
	}

	u, err := s.store.UpdateUser(id, func(u *model.User) {
		if u.DocumentVerification == nil {
			u.DocumentVerification = map[string]string{}
		}
		u.DocumentVerification[key] = d.Status
		if d.Status == model.DecisionRejected {
			u.DocumentRejectionNotes = d.Notes
		}
		settle(u)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Notify(u.ID, model.Notification{
		Type:  model.NotificationDocumentVerification,
		Title: "Vérification de document",
		Data:  &model.NotificationData{DocumentType: key, VerificationStatus: d.Status},
	})
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) verifyDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var d decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil || !validDecision(d.Status) {
		writeError(w, http.StatusBadRequest, "Décision invalide")
		return
	}
	u, err := s.store.UpdateUser(id, func(u *model.User) {
		if u.DocumentVerification == nil {
			u.DocumentVerification = map[string]string{}
		}
		for key, file := range u.Documents {
			if file != "" && key != verification.KeyPaymentReceipt {
				u.DocumentVerification[key] = d.Status
			}
		}
		u.DocumentRejectionNotes = ""
		if d.Status == model.DecisionRejected {
			u.DocumentRejectionNotes = d.Notes
		}
		settle(u)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Notify(u.ID, model.Notification{
		Type:  model.NotificationDocumentVerification,
		Title: "Vérification des documents",
		Data:  &model.NotificationData{VerificationStatus: d.Status},
	})
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.UpdateUser(id, func(u *model.User) {
		u.PaymentVerified = body.Verified
		settle(u)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Notify(u.ID, model.Notification{Type: model.NotificationPayment, Title: "Paiement vérifié"})
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		Status model.AccountStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeError(w, http.StatusBadRequest, "Statut invalide")
		return
	}
	u, err := s.store.UpdateUser(id, func(u *model.User) { u.Status = body.Status })
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{u})
}

func (s *Server) listRecharges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": s.store.Recharges(r.URL.Query().Get("status"))})
}

func (s *Server) approveRecharge(w http.ResponseWriter, r *http.Request) {
	s.decideRecharge(w, r, model.RechargeApproved, "", "Recharge approuvée")
}

func (s *Server) rejectRecharge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	s.decideRecharge(w, r, model.RechargeRejected, body.Reason, "Recharge refusée")
}

func (s *Server) decideRecharge(w http.ResponseWriter, r *http.Request, status, reason, title string) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	req, err := s.store.DecideRecharge(id, status, reason)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Notify(req.UserID, model.Notification{Type: model.NotificationRecharge, Title: title, Message: reason})
	writeJSON(w, http.StatusOK, map[string]interface{}{"request": req})
}
