package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/queue"
)

func TestBookingScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a1, err := f.sched.Create(ctx, "D1", "P1", slot, "follow-up")
	require.NoError(t, err)
	assert.NotEmpty(t, a1.ID)
	assert.Equal(t, model.StatusPending, a1.Status)
	assert.Equal(t, "follow-up", a1.PatientNote)

	_, err = f.sched.Create(ctx, "D1", "P2", slot, "")
	assert.True(t, errors.Is(err, apperr.SlotConflict))

	a1, err = f.sched.Approve(ctx, a1.ID, "D1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, a1.Status)

	a1, err = f.sched.Cancel(ctx, a1.ID, "P1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, a1.Status)

	a2, err := f.sched.Create(ctx, "D1", "P2", slot, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a2.Status)
	assert.NotEqual(t, a1.ID, a2.ID)
}

func TestApproveByOtherDoctorIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.sched.Create(ctx, "D3", "P1", slot, "")
	require.NoError(t, err)

	_, err = f.sched.Approve(ctx, a.ID, "D2")
	assert.True(t, errors.Is(err, apperr.Authorization))

	stored, err := f.appts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestConcurrentCreateExactlyOneWins(t *testing.T) {
	f := newFixture(t, nil)
	const n = 50

	var (
		wg        sync.WaitGroup
		ok        atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			patient := "P1"
			if i%2 == 1 {
				patient = "P2"
			}
			_, err := f.sched.Create(context.Background(), "D1", patient, slot, "")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.SlotConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, conflicts.Load())
}

func TestTransitionTable(t *testing.T) {
	ctx := context.Background()
	type step func(*Scheduler, string) (model.Appointment, error)
	approve := func(s *Scheduler, id string) (model.Appointment, error) { return s.Approve(ctx, id, "D1") }
	reject := func(s *Scheduler, id string) (model.Appointment, error) { return s.Reject(ctx, id, "D1") }
	cancel := func(s *Scheduler, id string) (model.Appointment, error) { return s.Cancel(ctx, id, "D1") }

	tests := []struct {
		name  string
		setup []step
		act   step
		want  model.AppointmentStatus
		fails bool
	}{
		{"pending approve", nil, approve, model.StatusConfirmed, false},
		{"pending reject", nil, reject, model.StatusCancelled, false},
		{"pending cancel", nil, cancel, model.StatusCancelled, false},
		{"confirmed cancel", []step{approve}, cancel, model.StatusCancelled, false},
		{"confirmed approve", []step{approve}, approve, model.StatusConfirmed, true},
		{"confirmed reject", []step{approve}, reject, model.StatusConfirmed, true},
		{"cancelled approve", []step{reject}, approve, model.StatusCancelled, true},
		{"cancelled reject", []step{reject}, reject, model.StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			a, err := f.sched.Create(ctx, "D1", "P1", slot, "")
			require.NoError(t, err)
			for _, s := range tt.setup {
				_, err := s(f.sched, a.ID)
				require.NoError(t, err)
			}
			before, _ := f.appts.Get(ctx, a.ID)

			_, err = tt.act(f.sched, a.ID)
			if tt.fails {
				assert.True(t, errors.Is(err, apperr.InvalidTransition), "got %v", err)
				after, _ := f.appts.Get(ctx, a.ID)
				assert.Equal(t, before, after)
			} else {
				assert.NoError(t, err)
			}
			got, _ := f.appts.Get(ctx, a.ID)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.sched.Create(ctx, "D1", "P1", slot, "")
	require.NoError(t, err)
	_, err = f.sched.SetDoctorNote(ctx, a.ID, "D1", "bring results")
	require.NoError(t, err)
	first, err := f.sched.Cancel(ctx, a.ID, "P1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.sched.Cancel(ctx, a.ID, "D1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "bring results", second.DoctorNote)
}

func TestErrorPrecedenceForDoctorOperations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sched.Approve(ctx, "missing", "D2")
	assert.True(t, errors.Is(err, apperr.NotFound))

	a, err := f.sched.Create(ctx, "D1", "P1", slot, "")
	require.NoError(t, err)
	_, err = f.sched.Reject(ctx, a.ID, "D1")
	require.NoError(t, err)

	// wrong doctor on a cancelled appointment: authorization wins
	_, err = f.sched.Approve(ctx, a.ID, "D2")
	assert.True(t, errors.Is(err, apperr.Authorization))

	_, err = f.sched.Cancel(ctx, a.ID, "P2")
	assert.True(t, errors.Is(err, apperr.Authorization))
}

func TestDoctorNote(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a, err := f.sched.Create(ctx, "D1", "P1", slot, "")
	require.NoError(t, err)
	_, err = f.sched.Cancel(ctx, a.ID, "P1")
	require.NoError(t, err)

	got, err := f.sched.SetDoctorNote(ctx, a.ID, "D1", "no-show")
	require.NoError(t, err)
	assert.Equal(t, "no-show", got.DoctorNote)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, err = f.sched.SetDoctorNote(ctx, a.ID, "D2", "x")
	assert.True(t, errors.Is(err, apperr.Authorization))

	_, err = f.sched.SetDoctorNote(ctx, a.ID, "D1", strings.Repeat("x", MaxDoctorNote+1))
	assert.True(t, errors.Is(err, apperr.Validation))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	code := func(err error) string {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae.Code
		}
		return ""
	}

	_, err := f.sched.Create(ctx, "D1", "P1", f.clock.Now().Add(-time.Minute), "")
	assert.Equal(t, apperr.CodeSlotInPast, code(err))

	_, err = f.sched.Create(ctx, "P2", "P1", slot, "")
	assert.Equal(t, apperr.CodeRoleMismatch, code(err))

	_, err = f.sched.Create(ctx, "D1", "D2", slot, "")
	assert.Equal(t, apperr.CodeRoleMismatch, code(err))

	_, err = f.sched.Create(ctx, "ghost", "P1", slot, "")
	assert.True(t, errors.Is(err, apperr.NotFound))

	_, err = f.sched.Create(ctx, "D1", "P1", slot, strings.Repeat("é", MaxPatientNote+1))
	assert.True(t, errors.Is(err, apperr.Validation))

	require.NoError(t, f.dir.SetAvailability(ctx, "D2", false))
	_, err = f.sched.Create(ctx, "D2", "P1", slot, "")
	assert.Equal(t, apperr.CodeDoctorUnavailable, code(err))
}

func TestSubSecondRequestsShareASlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sched.Create(ctx, "D1", "P1", slot.Add(200*time.Millisecond), "")
	require.NoError(t, err)
	_, err = f.sched.Create(ctx, "D1", "P2", slot.In(time.FixedZone("CET", 3600)), "")
	assert.True(t, errors.Is(err, apperr.SlotConflict))
}

func TestListsAreOrderedBySlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i, at := range []time.Time{slot.Add(2 * time.Hour), slot, slot.Add(time.Hour)} {
		_, err := f.sched.Create(ctx, "D1", "P1", at, fmt.Sprint(i))
		require.NoError(t, err)
	}
	list, err := f.sched.ListForPatient(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].ScheduledAt.Equal(slot))
	assert.True(t, list[2].ScheduledAt.Equal(slot.Add(2*time.Hour)))

	docList, err := f.sched.ListForDoctor(ctx, "D2")
	require.NoError(t, err)
	assert.Empty(t, docList)
}

func TestGetRestrictedToParties(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a, err := f.sched.Create(ctx, "D1", "P1", slot, "")
	require.NoError(t, err)

	_, err = f.sched.Get(ctx, a.ID, "P1")
	assert.NoError(t, err)
	_, err = f.sched.Get(ctx, a.ID, "D1")
	assert.NoError(t, err)
	_, err = f.sched.Get(ctx, a.ID, "P2")
	assert.True(t, errors.Is(err, apperr.Authorization))
}

// flakyStore fails the first n inserts with a transient error.
type flakyStore struct {
	AppointmentStore
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakyStore) Insert(ctx context.Context, a *model.Appointment) error {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return apperr.NewTransient("deadlock", errors.New("Error 1213"))
	}
	return s.AppointmentStore.Insert(ctx, a)
}

func TestCreateRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, nil)
	store := &flakyStore{AppointmentStore: f.appts}
	store.failures.Store(2)
	sched := NewScheduler(store, f.dir, nil, SchedulerOptions{CreateRetries: 3, CreateRetryBackoff: time.Millisecond, Now: f.clock.Now}, logger.Discard())

	a, err := sched.Create(context.Background(), "D1", "P1", slot, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.EqualValues(t, 3, store.calls.Load())
}

func TestCreateGivesUpWithTransientError(t *testing.T) {
	f := newFixture(t, nil)
	store := &flakyStore{AppointmentStore: f.appts}
	store.failures.Store(100)
	sched := NewScheduler(store, f.dir, nil, SchedulerOptions{CreateRetries: 2, CreateRetryBackoff: time.Millisecond, Now: f.clock.Now}, logger.Discard())

	_, err := sched.Create(context.Background(), "D1", "P1", slot, "")
	assert.True(t, errors.Is(err, apperr.Transient))
	assert.EqualValues(t, 3, store.calls.Load())
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	pub := &mockPublisher{}
	got := make(chan queue.AppointmentEvent, 4)
	pub.On("PublishAppointmentEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got <- args.Get(1).(queue.AppointmentEvent) }).
		Return(nil)

	f := newFixture(t, pub)
	a, err := f.sched.Create(context.Background(), "D1", "P1", slot, "")
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, queue.EventCreated, ev.Type)
		assert.Equal(t, a.ID, ev.AppointmentID)
		assert.Equal(t, "P1", ev.ActorID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}

	// a failed create publishes nothing
	_, err = f.sched.Create(context.Background(), "D1", "P2", slot, "")
	require.Error(t, err)
	select {
	case ev := <-got:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// lostAckStore commits the first insert and then reports a transient
// failure, as when the commit acknowledgement is lost on the wire.
type lostAckStore struct {
	AppointmentStore
	calls atomic.Int32
}

func (s *lostAckStore) Insert(ctx context.Context, a *model.Appointment) error {
	if s.calls.Add(1) == 1 {
		if err := s.AppointmentStore.Insert(ctx, a); err != nil {
			return err
		}
		return apperr.NewTransient("connection reset after commit", errors.New("invalid connection"))
	}
	return s.AppointmentStore.Insert(ctx, a)
}

func TestCreateReturnsRowCommittedBeforeLostAck(t *testing.T) {
	f := newFixture(t, nil)
	store := &lostAckStore{AppointmentStore: f.appts}
	sched := NewScheduler(store, f.dir, nil, SchedulerOptions{CreateRetries: 3, CreateRetryBackoff: time.Millisecond, Now: f.clock.Now}, logger.Discard())

	a, err := sched.Create(context.Background(), "D1", "P1", slot, "follow-up")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, "follow-up", a.PatientNote)
	assert.EqualValues(t, 2, store.calls.Load())

	rows, err := sched.ListForPatient(context.Background(), "P1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)
}
