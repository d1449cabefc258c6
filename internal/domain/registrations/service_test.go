package registrations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatherhall/server/internal/domain/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeStore emulates the store's transactional guarantees: WithTx holds one
// lock for the whole closure, the same way the row lock on the event
// serializes concurrent admissions in Postgres.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]*events.Event
	regs   map[string]*Registration
	pair   map[[2]string]string // (eventID, userID) -> registration id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: make(map[string]*events.Event),
		regs:   make(map[string]*Registration),
		pair:   make(map[[2]string]string),
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &fakeRepo{store: s})
}

func (s *fakeStore) Repo() Repository {
	return &fakeRepo{store: s, locking: true}
}

func (s *fakeStore) addEvent(event events.Event) {
	s.events[event.ID] = &event
}

type fakeRepo struct {
	store   *fakeStore
	locking bool // take the store lock per call (non-transactional reads)
}

func (r *fakeRepo) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *fakeRepo) LockEvent(ctx context.Context, eventID string) (*events.Event, error) {
	defer r.lock()()
	event, ok := r.store.events[eventID]
	if !ok {
		return nil, events.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *fakeRepo) CountActive(ctx context.Context, eventID string) (int64, error) {
	defer r.lock()()
	var n int64
	for _, reg := range r.store.regs {
		if reg.EventID == eventID && reg.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) GetByEventAndUser(ctx context.Context, eventID, userID string) (*Registration, error) {
	defer r.lock()()
	id, ok := r.store.pair[[2]string{eventID, userID}]
	if !ok {
		return nil, nil
	}
	copied := *r.store.regs[id]
	return &copied, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*Registration, error) {
	defer r.lock()()
	reg, ok := r.store.regs[id]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	copied := *reg
	return &copied, nil
}

func (r *fakeRepo) Insert(ctx context.Context, reg Registration) error {
	defer r.lock()()
	key := [2]string{reg.EventID, reg.UserID}
	if _, ok := r.store.pair[key]; ok {
		return ErrAlreadyRegistered
	}
	stored := reg
	r.store.regs[reg.ID] = &stored
	r.store.pair[key] = reg.ID
	return nil
}

func (r *fakeRepo) Reactivate(ctx context.Context, reg Registration) error {
	defer r.lock()()
	stored, ok := r.store.regs[reg.ID]
	if !ok {
		return ErrRegistrationNotFound
	}
	*stored = reg
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id string, status Status) error {
	defer r.lock()()
	reg, ok := r.store.regs[id]
	if !ok {
		return ErrRegistrationNotFound
	}
	reg.Status = status
	reg.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeRepo) ListByEvent(ctx context.Context, eventID string) ([]Registration, error) {
	defer r.lock()()
	var out []Registration
	for _, reg := range r.store.regs {
		if reg.EventID == eventID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByUser(ctx context.Context, userID string) ([]Registration, error) {
	defer r.lock()()
	var out []Registration
	for _, reg := range r.store.regs {
		if reg.UserID == userID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

type fakeProfiles struct {
	missing map[string][]string
}

func (f *fakeProfiles) MissingProfileFields(ctx context.Context, userID string) ([]string, error) {
	return f.missing[userID], nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	cancelled []string
}

func (n *recordingNotifier) RegistrationConfirmed(ctx context.Context, reg Registration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, reg.ID)
}

func (n *recordingNotifier) RegistrationCancelled(ctx context.Context, reg Registration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, reg.ID)
}

const (
	organizerID = "org-1"
	eventID     = "01HYX3KQW7ERTV9XNBM2P8QJZF"
)

func setup(capacity *int32) (*fakeStore, *recordingNotifier, *Service) {
	store := newFakeStore()
	store.addEvent(events.Event{
		ID:          eventID,
		Code:        "AB23CDEF",
		Status:      events.StatusPublished,
		Capacity:    capacity,
		OrganizerID: organizerID,
	})

	notifier := &recordingNotifier{}
	profiles := &fakeProfiles{missing: map[string][]string{
		"incomplete-user": {"full_name", "phone"},
	}}
	service := NewService(store, profiles, notifier, zerolog.Nop())
	return store, notifier, service
}

func capOf(n int32) *int32 { return &n }

func TestAdmitCreatesRegistration(t *testing.T) {
	_, notifier, service := setup(capOf(10))

	reg, err := service.Admit(context.Background(), eventID, "user-a", map[string]any{"meal": "vegan"})

	require.NoError(t, err)
	require.Equal(t, StatusRegistered, reg.Status)
	require.Equal(t, "user-a", reg.UserID)
	require.Equal(t, "vegan", reg.Answers["meal"])
	require.False(t, reg.RegisteredAt.IsZero())
	require.Equal(t, []string{reg.ID}, notifier.confirmed)
}

func TestAdmitRejectsUnpublishedEvent(t *testing.T) {
	for _, status := range []events.Status{events.StatusDraft, events.StatusCancelled, events.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			store, _, service := setup(nil)
			store.events[eventID].Status = status

			_, err := service.Admit(context.Background(), eventID, "user-a", nil)

			require.ErrorIs(t, err, ErrNotOpen)
		})
	}
}

func TestAdmitUnknownEvent(t *testing.T) {
	_, _, service := setup(nil)

	_, err := service.Admit(context.Background(), "01HYX3KQW7ERTV9XNBM2P8QJZZ", "user-a", nil)

	require.ErrorIs(t, err, events.ErrEventNotFound)
}

func TestAdmitRejectsIncompleteProfile(t *testing.T) {
	_, notifier, service := setup(capOf(10))

	_, err := service.Admit(context.Background(), eventID, "incomplete-user", nil)

	var profileErr IncompleteProfileError
	require.ErrorAs(t, err, &profileErr)
	require.Equal(t, []string{"full_name", "phone"}, profileErr.MissingFields)
	require.Empty(t, notifier.confirmed)
}

func TestAdmitDuplicateActiveRegistration(t *testing.T) {
	_, _, service := setup(capOf(10))

	first, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	_, err = service.Admit(context.Background(), eventID, "user-a", nil)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// still exactly one row for the pair
	regs, err := service.ListByEvent(context.Background(), eventID, organizerID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, first.ID, regs[0].ID)
}

func TestAdmitCapacityExceeded(t *testing.T) {
	_, _, service := setup(capOf(1))

	_, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	_, err = service.Admit(context.Background(), eventID, "user-b", nil)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestAdmitUnboundedCapacity(t *testing.T) {
	_, _, service := setup(nil)

	for _, user := range []string{"user-a", "user-b", "user-c", "user-d"} {
		_, err := service.Admit(context.Background(), eventID, user, nil)
		require.NoError(t, err)
	}
}

func TestAdmitConcurrentLastSlot(t *testing.T) {
	_, _, service := setup(capOf(1))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, user := range []string{"user-a", "user-b"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := service.Admit(context.Background(), eventID, user, nil)
			errs <- err
		}(user)
	}
	wg.Wait()
	close(errs)

	var successes, capacityRejections int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrCapacityExceeded):
			capacityRejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, capacityRejections)
}

func TestAdmitCapacityInvariantUnderConcurrency(t *testing.T) {
	const capacity = 5
	const attempts = 20
	store, _, service := setup(capOf(capacity))

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = service.Admit(context.Background(), eventID, string(rune('a'+i)), nil)
		}(i)
	}
	wg.Wait()

	var active int
	for _, reg := range store.regs {
		if reg.Status.IsActive() {
			active++
		}
	}
	require.Equal(t, capacity, active)
}

func TestReactivationReusesRow(t *testing.T) {
	_, _, service := setup(capOf(10))

	first, err := service.Admit(context.Background(), eventID, "user-a", map[string]any{"meal": "fish"})
	require.NoError(t, err)

	// organizer cancels
	_, err = service.SetStatus(context.Background(), first.ID, StatusCancelled, organizerID)
	require.NoError(t, err)

	// user re-admits with a new payload: same row id, payload replaced
	second, err := service.Admit(context.Background(), eventID, "user-a", map[string]any{"meal": "vegan"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, StatusRegistered, second.Status)
	require.Equal(t, "vegan", second.Answers["meal"])
}

func TestReactivationSubjectToCapacity(t *testing.T) {
	_, _, service := setup(capOf(1))

	first, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	require.NoError(t, service.Cancel(context.Background(), first.ID, "user-a"))

	// the freed slot goes to user-b
	_, err = service.Admit(context.Background(), eventID, "user-b", nil)
	require.NoError(t, err)

	// user-a's reactivation now hits the capacity guard
	_, err = service.Admit(context.Background(), eventID, "user-a", nil)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestSetStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"registered to attended", StatusRegistered, StatusAttended, true},
		{"registered to cancelled", StatusRegistered, StatusCancelled, true},
		{"attended to cancelled", StatusAttended, StatusCancelled, true},
		{"cancelled to attended", StatusCancelled, StatusAttended, false},
		{"attended to registered", StatusAttended, StatusRegistered, false},
		{"cancelled to registered", StatusCancelled, StatusRegistered, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, _, service := setup(capOf(10))
			reg, err := service.Admit(context.Background(), eventID, "user-a", nil)
			require.NoError(t, err)
			store.regs[reg.ID].Status = tc.from

			_, err = service.SetStatus(context.Background(), reg.ID, tc.to, organizerID)

			if tc.allowed {
				require.NoError(t, err)
				require.Equal(t, tc.to, store.regs[reg.ID].Status)
			} else {
				var transitionErr InvalidTransitionError
				require.ErrorAs(t, err, &transitionErr)
				require.Equal(t, tc.from, transitionErr.From)
				require.Equal(t, tc.to, transitionErr.To)
				require.Equal(t, tc.from, store.regs[reg.ID].Status)
			}
		})
	}
}

func TestSetStatusOrganizerOnly(t *testing.T) {
	_, _, service := setup(capOf(10))

	reg, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	_, err = service.SetStatus(context.Background(), reg.ID, StatusAttended, "user-a")
	require.ErrorIs(t, err, ErrNotPermitted)
}

func TestSetStatusCancelledTwiceIsNoop(t *testing.T) {
	store, notifier, service := setup(capOf(10))

	reg, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	_, err = service.SetStatus(context.Background(), reg.ID, StatusCancelled, organizerID)
	require.NoError(t, err)

	updated, err := service.SetStatus(context.Background(), reg.ID, StatusCancelled, organizerID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)
	require.Equal(t, StatusCancelled, store.regs[reg.ID].Status)

	// only the first cancellation notified
	require.Len(t, notifier.cancelled, 1)
}

func TestCancelByRegistrantAndOrganizer(t *testing.T) {
	_, _, service := setup(capOf(10))

	regA, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)
	regB, err := service.Admit(context.Background(), eventID, "user-b", nil)
	require.NoError(t, err)

	require.NoError(t, service.Cancel(context.Background(), regA.ID, "user-a"))
	require.NoError(t, service.Cancel(context.Background(), regB.ID, organizerID))

	// a stranger may not cancel someone else's registration
	regC, err := service.Admit(context.Background(), eventID, "user-c", nil)
	require.NoError(t, err)
	err = service.Cancel(context.Background(), regC.ID, "user-b")
	require.ErrorIs(t, err, ErrNotPermitted)
}

func TestCancelIdempotent(t *testing.T) {
	_, notifier, service := setup(capOf(10))

	reg, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	require.NoError(t, service.Cancel(context.Background(), reg.ID, "user-a"))
	require.NoError(t, service.Cancel(context.Background(), reg.ID, "user-a"))
	require.Len(t, notifier.cancelled, 1)
}

func TestCancelUnknownRegistration(t *testing.T) {
	_, _, service := setup(capOf(10))

	err := service.Cancel(context.Background(), "missing", "user-a")
	require.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestListByEventOrganizerOnly(t *testing.T) {
	_, _, service := setup(capOf(10))

	_, err := service.Admit(context.Background(), eventID, "user-a", nil)
	require.NoError(t, err)

	_, err = service.ListByEvent(context.Background(), eventID, "user-a")
	require.ErrorIs(t, err, ErrNotPermitted)

	regs, err := service.ListByEvent(context.Background(), eventID, organizerID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
}
