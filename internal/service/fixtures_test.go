package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/queue"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/repository/memstore"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/utils"
)

const password = "correct-horse"

var slot = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// mockPublisher records published events on a channel.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishAppointmentEvent(ctx context.Context, ev queue.AppointmentEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type fixture struct {
	clock    *fakeClock
	users    *memstore.Users
	appts    *memstore.Appointments
	sessions *memstore.Sessions
	dir      *Directory
	sess     *SessionService
	sched    *Scheduler
	auth     *AuthorizedScheduler
}

func user(t *testing.T, id string, role model.Role, sp model.Specialty) model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	return model.User{
		ID: id, Email: id + "@clinic.test", PasswordHash: hash, Role: role, Specialty: sp,
		Name: id, Surname: "Test", BirthDate: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), Available: true,
	}
}

func newFixture(t *testing.T, events EventPublisher) *fixture {
	t.Helper()
	f := &fixture{clock: &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}}
	f.users = memstore.NewUsers(
		user(t, "P1", model.RolePatient, ""),
		user(t, "P2", model.RolePatient, ""),
		user(t, "D1", model.RoleDoctor, model.SpecialtyCardiology),
		user(t, "D2", model.RoleDoctor, model.SpecialtyCardiology),
		user(t, "D3", model.RoleDoctor, model.SpecialtyEye),
	)
	f.appts = memstore.NewAppointments()
	f.sessions = memstore.NewSessions()
	log := logger.Discard()

	f.dir = NewDirectory(f.users, bcrypt.MinCost, log).WithClock(f.clock.Now)
	f.sess = NewSessionService(f.sessions, f.dir, utils.NewTokenCodec("test-secret"),
		SessionOptions{TTL: 30 * time.Minute, Now: f.clock.Now}, log)
	f.sched = NewScheduler(f.appts, f.dir, events,
		SchedulerOptions{CreateRetries: 3, CreateRetryBackoff: time.Millisecond, Now: f.clock.Now}, log)
	f.auth = NewAuthorizedScheduler(f.sess, f.sched)
	return f
}

func (f *fixture) login(t *testing.T, id string) string {
	t.Helper()
	s, err := f.sess.Login(context.Background(), id+"@clinic.test", password)
	require.NoError(t, err)
	return s.Token
}
