package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"unigo-console/internal/model"
)

// Districts

func (s *Server) listDistricts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"districts": s.store.Districts()})
}

func (s *Server) saveDistrict(w http.ResponseWriter, r *http.Request) {
	var d model.District
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil || strings.TrimSpace(d.Name) == "" {
		writeError(w, http.StatusBadRequest, "Nom du quartier requis")
		return
	}
	status := http.StatusCreated
	d.ID = 0
	if r.Method == http.MethodPut {
		id, err := idParam(r, "id")
		if err != nil {
			s.fail(w, err)
			return
		}
		d.ID = id
		status = http.StatusOK
	}
	d, err := s.store.SaveDistrict(d)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, status, map[string]interface{}{"district": d})
}

func (s *Server) deleteDistrict(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.store.DeleteDistrict(id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Universities

func (s *Server) listUniversities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"universities": s.store.Universities()})
}

// saveUniversity handles both create and update; the form carries name,
// acronym, district_id and an optional logo file.
func (s *Server) saveUniversity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Formulaire invalide")
		return
	}
	defer r.MultipartForm.RemoveAll()

	u := model.University{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Acronym: r.FormValue("acronym"),
	}
	if u.Name == "" {
		writeError(w, http.StatusBadRequest, "Nom de l'université requis")
		return
	}
	if v := r.FormValue("district_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "district_id invalide")
			return
		}
		u.DistrictID = id
	}
	if file, header, err := r.FormFile("logo"); err == nil {
		io.Copy(io.Discard, file)
		file.Close()
		u.Logo = fmt.Sprintf("%s-%s", uuid.NewString(), header.Filename)
	}

	status := http.StatusCreated
	if r.Method == http.MethodPut {
		id, err := idParam(r, "id")
		if err != nil {
			s.fail(w, err)
			return
		}
		u.ID = id
		status = http.StatusOK
	}
	u, err := s.store.SaveUniversity(u)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, status, map[string]interface{}{"university": u})
}

func (s *Server) deleteUniversity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.store.DeleteUniversity(id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Incidents

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	status := model.IncidentStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"incidents": s.store.Incidents(status)})
}

func (s *Server) updateIncident(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		Status model.IncidentStatus `json:"status"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	switch body.Status {
	case model.IncidentOpen, model.IncidentResolved, model.IncidentRejected:
	default:
		writeError(w, http.StatusBadRequest, "Statut invalide")
		return
	}
	in, err := s.store.SetIncidentStatus(id, body.Status)
	if err != nil {
		s.fail(w, err)
		return
	}
	if in.Status == model.IncidentResolved {
		s.Notify(in.ReporterID, model.Notification{
			Type:    model.NotificationSystem,
			Title:   "Signalement traité",
			Message: fmt.Sprintf("Votre signalement #%d a été résolu", in.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"incident": in})
}

func (s *Server) deleteIncident(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err == nil {
		err = s.store.DeleteIncident(id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
