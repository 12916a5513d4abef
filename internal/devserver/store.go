package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"unigo-console/internal/model"
)

var (
	ErrUserNotFound = errors.New("Utilisateur non trouvé")
	ErrEmailTaken   = errors.New("Cet email est déjà utilisé")
	ErrNotFound     = errors.New("Ressource introuvable")
)

type account struct {
	user     model.User
	password string
}

// Store is the in-memory database behind the devserver.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	accounts      map[int]*account
	notifications map[int][]model.Notification
	messages      []model.Message
	districts     []model.District
	universities  []model.University
	incidents     []model.Incident
	recharges     []model.RechargeRequest
	nextID        int
}

func NewStore() *Store {
	return &Store{
		now:           time.Now,
		accounts:      make(map[int]*account),
		notifications: make(map[int][]model.Notification),
		districts: []model.District{
			{ID: 1, Name: "Plateau"},
			{ID: 2, Name: "Médina"},
			{ID: 3, Name: "Fann"},
		},
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateUser(u model.User, hash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, u.Email) {
			return model.User{}, ErrEmailTaken
		}
	}
	u.ID = s.id()
	u.CreatedAt = s.now()
	s.accounts[u.ID] = &account{user: u, password: hash}
	return u, nil
}

func (s *Store) byEmail(email string) (*account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *Store) User(id int) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return a.user, nil
}

// UpdateUser applies fn to the stored user under the store lock.
func (s *Store) UpdateUser(id int, fn func(u *model.User)) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	fn(&a.user)
	return a.user, nil
}

func (s *Store) Users(f model.UserFilter) []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, a := range s.accounts {
		if f.Role != "" && a.user.Role != f.Role {
			continue
		}
		if f.Status != "" && a.user.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(a.user.FullName()+" "+a.user.Email), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, a.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddNotification stores n for userID, newest first.
func (s *Store) AddNotification(userID int, n model.Notification) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications[userID] = append([]model.Notification{n}, s.notifications[userID]...)
	return n
}

func (s *Store) Notifications(userID, limit int) model.NotificationList {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.notifications[userID]
	list := model.NotificationList{Notifications: []model.Notification{}}
	for _, n := range all {
		if !n.Read {
			list.UnreadCount++
		}
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	list.Notifications = append(list.Notifications, all...)
	return list
}

func (s *Store) MarkNotificationRead(userID, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications[userID] {
		if n.ID == id {
			s.notifications[userID][i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications[userID] {
		s.notifications[userID][i].Read = true
	}
}

func (s *Store) DeleteNotification(userID, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[userID]
	for i, n := range list {
		if n.ID == id {
			s.notifications[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) ref(id int) model.UserRef {
	a, ok := s.accounts[id]
	if !ok {
		return model.UserRef{ID: id}
	}
	return model.UserRef{ID: id, FirstName: a.user.FirstName, LastName: a.user.LastName, ProfilePicture: a.user.ProfilePicture}
}

func (s *Store) AddMessage(m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[m.Receiver.ID]; !ok {
		return model.Message{}, ErrUserNotFound
	}
	m.ID = s.id()
	m.CreatedAt = s.now()
	m.Sender = s.ref(m.Sender.ID)
	m.Receiver = s.ref(m.Receiver.ID)
	s.messages = append(s.messages, m)
	return m, nil
}

// Thread returns the messages between me and other, oldest first, and
// marks the ones other sent as read. It reports whether any were marked.
func (s *Store) Thread(me, other int) ([]model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Message{}
	marked := false
	for i, m := range s.messages {
		if m.Counterpart(me) != other || (m.Sender.ID != me && m.Receiver.ID != me) {
			continue
		}
		if m.Sender.ID == other && !m.Read {
			s.messages[i].Read = true
			m.Read = true
			marked = true
		}
		out = append(out, m)
	}
	return out, marked
}

func (s *Store) Conversations(me int) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOther := make(map[int]*model.Conversation)
	var order []int
	for _, m := range s.messages {
		if m.Sender.ID != me && m.Receiver.ID != me {
			continue
		}
		other := m.Counterpart(me)
		c, ok := byOther[other]
		if !ok {
			c = &model.Conversation{ID: other, OtherUser: s.ref(other)}
			byOther[other] = c
			order = append(order, other)
		}
		last := m
		c.LastMessage = &last
		if m.Receiver.ID == me && !m.Read {
			c.UnreadCount++
		}
	}
	out := make([]model.Conversation, 0, len(order))
	for _, id := range order {
		out = append(out, *byOther[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out
}

func (s *Store) UnreadMessages(me int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Receiver.ID == me && !m.Read {
			n++
		}
	}
	return n
}

// DeleteUser removes the account and its notifications. Messages stay.
func (s *Store) DeleteUser(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.accounts, id)
	delete(s.notifications, id)
	return nil
}

func (s *Store) Districts() []model.District {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.District{}, s.districts...)
}

// SaveDistrict inserts d when its ID is zero and replaces the stored
// district otherwise.
func (s *Store) SaveDistrict(d model.District) (model.District, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = 1
		for _, x := range s.districts {
			if x.ID >= d.ID {
				d.ID = x.ID + 1
			}
		}
		s.districts = append(s.districts, d)
		return d, nil
	}
	for i := range s.districts {
		if s.districts[i].ID == d.ID {
			s.districts[i] = d
			return d, nil
		}
	}
	return model.District{}, ErrNotFound
}

func (s *Store) DeleteDistrict(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.universities {
		if u.DistrictID == id {
			return errors.New("Quartier utilisé par une université")
		}
	}
	for i, d := range s.districts {
		if d.ID == id {
			s.districts = append(s.districts[:i], s.districts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) Universities() []model.University {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.University{}, s.universities...)
}

// SaveUniversity inserts or replaces u like SaveDistrict. An update with
// no logo keeps the stored one.
func (s *Store) SaveUniversity(u model.University) (model.University, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.DistrictID != 0 && !s.hasDistrict(u.DistrictID) {
		return model.University{}, errors.New("Quartier inconnu")
	}
	if u.ID == 0 {
		u.ID = s.id()
		s.universities = append(s.universities, u)
		return u, nil
	}
	for i := range s.universities {
		if s.universities[i].ID == u.ID {
			if u.Logo == "" {
				u.Logo = s.universities[i].Logo
			}
			s.universities[i] = u
			return u, nil
		}
	}
	return model.University{}, ErrNotFound
}

func (s *Store) hasDistrict(id int) bool {
	for _, d := range s.districts {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) DeleteUniversity(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.universities {
		if u.ID == id {
			s.universities = append(s.universities[:i], s.universities[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) AddIncident(in model.Incident) model.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = s.id()
	if in.Status == "" {
		in.Status = model.IncidentOpen
	}
	in.CreatedAt = s.now()
	s.incidents = append(s.incidents, in)
	return in
}

func (s *Store) Incidents(status model.IncidentStatus) []model.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Incident{}
	for _, in := range s.incidents {
		if status == "" || in.Status == status {
			out = append(out, in)
		}
	}
	return out
}

func (s *Store) SetIncidentStatus(id int, status model.IncidentStatus) (model.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.incidents {
		if s.incidents[i].ID == id {
			s.incidents[i].Status = status
			return s.incidents[i], nil
		}
	}
	return model.Incident{}, ErrNotFound
}

func (s *Store) DeleteIncident(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, in := range s.incidents {
		if in.ID == id {
			s.incidents = append(s.incidents[:i], s.incidents[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) AddRecharge(r model.RechargeRequest) model.RechargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	if r.Status == "" {
		r.Status = model.RechargePending
	}
	r.CreatedAt = s.now()
	s.recharges = append(s.recharges, r)
	return r
}

func (s *Store) Recharges(status string) []model.RechargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.RechargeRequest{}
	for _, r := range s.recharges {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// DecideRecharge moves a pending request to status.
func (s *Store) DecideRecharge(id int, status, reason string) (model.RechargeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recharges {
		if r.ID != id {
			continue
		}
		if r.Status != model.RechargePending {
			return model.RechargeRequest{}, errors.New("Demande déjà traitée")
		}
		s.recharges[i].Status = status
		s.recharges[i].Reason = reason
		return s.recharges[i], nil
	}
	return model.RechargeRequest{}, ErrNotFound
}
