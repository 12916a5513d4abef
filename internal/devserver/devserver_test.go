package devserver_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unigo-console/internal/api"
	"unigo-console/internal/devserver"
	"unigo-console/internal/inbox"
	"unigo-console/internal/model"
	"unigo-console/internal/notification"
	"unigo-console/internal/realtime"
	"unigo-console/internal/session"
	"unigo-console/internal/verification"
)

type env struct {
	dev     *devserver.Server
	httpSrv *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dev := devserver.New(devserver.Options{JWTSecret: "test-secret"})
	ctx, cancel := context.WithCancel(context.Background())
	go dev.Run(ctx)
	srv := httptest.NewServer(dev.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &env{dev: dev, httpSrv: srv}
}

type actor struct {
	creds    *session.Credentials
	provider *session.Provider
	client   *api.Client
	channel  *realtime.Channel
	user     *model.User
}

func (e *env) signUp(t *testing.T, email string, role model.Role) *actor {
	t.Helper()
	creds := session.NewCredentials(session.NewMemoryStore(), email)
	client := api.NewClient(api.Options{BaseURL: e.httpSrv.URL + "/api"}, creds)
	provider := session.NewProvider(client, creds, nil)
	u, err := provider.Register(context.Background(), model.RegisterRequest{
		FirstName: strings.Split(email, "@")[0],
		Email:     email,
		Password:  "motdepasse",
		Role:      role,
	})
	require.NoError(t, err)

	ch := realtime.New(realtime.Options{
		URL:    "ws" + strings.TrimPrefix(e.httpSrv.URL, "http") + "/socket",
		Tokens: creds,
	})
	t.Cleanup(func() { ch.Close() })
	return &actor{creds: creds, provider: provider, client: client, channel: ch, user: u}
}

func (e *env) connect(t *testing.T, a *actor) {
	t.Helper()
	a.channel.OnConnect(func() { a.channel.Emit(realtime.EventUserOnline, a.user.ID) })
	require.NoError(t, a.channel.Connect(context.Background()))
	require.Eventually(t, func() bool { return e.dev.Online(a.user.ID) }, 2*time.Second, 10*time.Millisecond)
}

func TestLoginAndProfile(t *testing.T) {
	e := newEnv(t)
	admin := e.signUp(t, "admin@unigo.sn", model.RoleAdmin)
	require.NoError(t, admin.provider.Logout(context.Background()))

	_, err := admin.provider.Login(context.Background(), model.Credentials{Email: "admin@unigo.sn", Password: "faux"})
	require.Error(t, err)
	assert.Equal(t, "Email ou mot de passe incorrect", api.UserMessage(err))

	_, err = admin.provider.Login(context.Background(), model.Credentials{Email: "admin@unigo.sn", Password: "motdepasse"})
	require.NoError(t, err)
	u, err := admin.provider.RefreshProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)

	exp, ok := admin.provider.ExpiresAt()
	require.True(t, ok)
	assert.True(t, exp.After(time.Now()))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newEnv(t)
	driver := e.signUp(t, "driver@unigo.sn", model.RoleDriver)

	_, err := driver.client.GetUser(context.Background(), driver.user.ID)
	assert.Equal(t, 403, api.StatusCode(err))
}

func TestNotificationFeedEndToEnd(t *testing.T) {
	e := newEnv(t)
	admin := e.signUp(t, "admin@unigo.sn", model.RoleAdmin)

	feed := notification.NewFeed(admin.client, nil, notification.Options{})
	feed.Attach(admin.channel, admin.user.ID)
	e.connect(t, admin)

	feed.Seed(context.Background())
	snap := feed.Snapshot()
	require.Len(t, snap.Items, 1, "welcome notification from registration")
	assert.Equal(t, 1, snap.Unread)

	e.dev.Notify(admin.user.ID, model.Notification{Type: model.NotificationSystem, Title: "Maintenance"})
	require.Eventually(t, func() bool { return feed.Unread() == 2 }, 2*time.Second, 10*time.Millisecond)

	id := feed.Snapshot().Items[0].ID
	require.NoError(t, feed.Delete(context.Background(), id))
	assert.Equal(t, 1, feed.Unread())

	feed.Seed(context.Background())
	assert.Len(t, feed.Snapshot().Items, 1)
	assert.Equal(t, 1, feed.Unread())
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) handler(event string) realtime.HandlerFunc {
	return func(json.RawMessage) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
	}
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestConversationEndToEnd(t *testing.T) {
	e := newEnv(t)
	admin := e.signUp(t, "admin@unigo.sn", model.RoleAdmin)
	driver := e.signUp(t, "driver@unigo.sn", model.RoleDriver)

	box := inbox.New(admin.client, admin.channel, admin.user.ID, inbox.Options{TypingDebounce: 50 * time.Millisecond})
	t.Cleanup(box.Close)
	box.Bind(admin.channel)
	e.connect(t, admin)

	seen := &recorder{}
	driver.channel.On(realtime.EventUserTyping, seen.handler(realtime.EventUserTyping))
	driver.channel.On(realtime.EventUserStopTyping, seen.handler(realtime.EventUserStopTyping))
	driver.channel.On(realtime.EventMessagesRead, seen.handler(realtime.EventMessagesRead))
	e.connect(t, driver)
	require.Eventually(t, func() bool { return box.IsOnline(driver.user.ID) }, 2*time.Second, 10*time.Millisecond)

	_, err := driver.client.SendMessage(context.Background(), api.SendMessageRequest{ReceiverID: admin.user.ID, Content: "Bonjour, mon dossier ?"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		convs := box.Conversations()
		return len(convs) == 1 && convs[0].UnreadCount == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return box.UnreadMessages() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, box.Select(context.Background(), driver.user.ID))
	th := box.Thread()
	require.Len(t, th.Messages, 1)
	assert.Equal(t, 0, box.Conversations()[0].UnreadCount)
	assert.Equal(t, 0, box.UnreadMessages())
	require.Eventually(t, func() bool { return seen.has(realtime.EventMessagesRead) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, box.Keystroke())
	require.Eventually(t, func() bool { return seen.has(realtime.EventUserTyping) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return seen.has(realtime.EventUserStopTyping) }, 2*time.Second, 10*time.Millisecond)

	sent, err := box.Send(context.Background(), inbox.Outgoing{Content: "Il est en cours de vérification."})
	require.NoError(t, err)
	th = box.Thread()
	require.Len(t, th.Messages, 2)
	assert.Equal(t, sent.ID, th.Messages[1].ID)

	_, err = driver.client.SendMessage(context.Background(), api.SendMessageRequest{ReceiverID: admin.user.ID, Content: "Merci"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(box.Thread().Messages) == 3 }, 2*time.Second, 10*time.Millisecond)

	driver.channel.Close()
	require.Eventually(t, func() bool { return !box.IsOnline(driver.user.ID) }, 2*time.Second, 10*time.Millisecond)
}

func TestDocumentVerificationEndToEnd(t *testing.T) {
	e := newEnv(t)
	admin := e.signUp(t, "admin@unigo.sn", model.RoleAdmin)
	student := e.signUp(t, "etudiant@unigo.sn", model.RolePassenger)
	_, err := e.dev.Store().UpdateUser(student.user.ID, func(u *model.User) {
		u.Documents = map[string]string{
			verification.KeyCNIRecto:    "recto.jpg",
			verification.KeyCNIVerso:    "verso.jpg",
			verification.KeyStudentCard: "carte.jpg",
		}
	})
	require.NoError(t, err)

	feed := notification.NewFeed(student.client, nil, notification.Options{})
	feed.Attach(student.channel, student.user.ID)
	e.connect(t, student)
	feed.Seed(context.Background())
	before := feed.Unread()

	ctx := context.Background()
	require.NoError(t, admin.client.VerifyDocument(ctx, student.user.ID, verification.KeyCNIRecto, api.Decision{Status: model.DecisionRejected, Notes: "Illisible"}))
	require.Eventually(t, func() bool { return feed.Unread() == before+1 }, 2*time.Second, 10*time.Millisecond)
	top := feed.Snapshot().Items[0]
	assert.Equal(t, model.NotificationDocumentVerification, top.Type)
	assert.Equal(t, "CNI (recto) : refusé", notification.Summary(top))

	u, err := admin.client.GetUser(ctx, student.user.ID)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusRejected, verification.Evaluate(u).Aggregate)

	for _, k := range []string{verification.KeyCNIRecto, verification.KeyCNIVerso, verification.KeyStudentCard} {
		require.NoError(t, admin.client.VerifyDocument(ctx, student.user.ID, k, api.Decision{Status: model.DecisionApproved}))
	}
	require.NoError(t, admin.client.VerifyPayment(ctx, student.user.ID, true))

	u, err = student.provider.RefreshProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, u.Status)
	assert.True(t, u.DocumentsVerified)
}

func TestRechargeModeration(t *testing.T) {
	e := newEnv(t)
	admin := e.signUp(t, "admin@unigo.sn", model.RoleAdmin)
	req := e.dev.Store().AddRecharge(model.RechargeRequest{UserID: admin.user.ID, Amount: 5000})

	ctx := context.Background()
	pending, err := admin.client.RechargeRequests(ctx, model.RechargePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, admin.client.RejectRecharge(ctx, req.ID, "Reçu illisible"))
	err = admin.client.ApproveRecharge(ctx, req.ID)
	require.Error(t, err)
	assert.Equal(t, "Demande déjà traitée", api.UserMessage(err))
}
