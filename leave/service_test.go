package leave_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/memstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var admin = leave.Principal{ID: "admin-1", Role: leave.RoleAdmin}

// tickingClock advances one second per call so creation order is stable.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, time.January, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type recorder struct {
	mu           sync.Mutex
	applications map[string]int
	transitions  map[string]int
	overdrafts   int
}

func newRecorder() *recorder {
	return &recorder{applications: map[string]int{}, transitions: map[string]int{}}
}

func (r *recorder) Application(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applications[outcome]++
}

func (r *recorder) Transition(from, to leave.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[string(from)+"->"+string(to)]++
}

func (r *recorder) Overdraft() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overdrafts++
}

func newTestService(t *testing.T, cfg leave.Config, opts ...leave.Option) (*leave.Service, *memstore.Memory) {
	t.Helper()
	store := memstore.New()
	opts = append([]leave.Option{leave.WithClock(tickingClock())}, opts...)
	return leave.NewService(store, cfg, opts...), store
}

func createUser(t *testing.T, svc *leave.Service, name string, quota int) leave.Principal {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), admin, leave.NewUser{
		Name:             name,
		Email:            name + "@example.com",
		PasswordHash:     "hash",
		AnnualLeaveQuota: &quota,
	})
	require.NoError(t, err)
	return leave.Principal{ID: u.ID, Role: u.Role}
}

func remaining(t *testing.T, store leave.Store, userID string) decimal.Decimal {
	t.Helper()
	u, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.RemainingLeaves
}

func days(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func jan(d int) leave.Date { return leave.NewDate(2025, time.January, d) }

func apply(t *testing.T, svc *leave.Service, p leave.Principal, start, end leave.Date, lt leave.LeaveType) *leave.Request {
	t.Helper()
	req, err := svc.Apply(context.Background(), p, leave.ApplyInput{StartDate: start, EndDate: end, LeaveType: lt})
	require.NoError(t, err)
	return req
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_FiveDays_PendingLedgerUnchanged(t *testing.T) {
	// GIVEN: user with quota 20, remaining 20
	// WHEN: applying for Jan 1-5 full days
	// THEN: 5 days, pending, ledger still 20
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)

	req := apply(t, svc, alice, jan(1), jan(5), leave.LeaveFull)

	assert.True(t, req.NumberOfDays.Equal(days("5")))
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, alice.ID, req.UserID)
	assert.True(t, remaining(t, store, alice.ID).Equal(days("20")))
}

func TestApply_HalfDay(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)

	req := apply(t, svc, alice, jan(7), jan(7), leave.LeaveHalf)
	assert.Equal(t, "0.5", req.NumberOfDays.String())
}

func TestApply_DefaultsToFullDay(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)

	req := apply(t, svc, alice, jan(7), jan(8), "")
	assert.Equal(t, leave.LeaveFull, req.LeaveType)
	assert.True(t, req.NumberOfDays.Equal(days("2")))
}

func TestApply_InsufficientBalance_NothingPersisted(t *testing.T) {
	// GIVEN: user with remaining 2
	// WHEN: applying for 5 days
	// THEN: InsufficientBalance, no request, ledger unchanged
	rec := newRecorder()
	svc, store := newTestService(t, leave.Config{}, leave.WithRecorder(rec))
	bob := createUser(t, svc, "bob", 2)

	_, err := svc.Apply(context.Background(), bob, leave.ApplyInput{
		StartDate: jan(1), EndDate: jan(5), LeaveType: leave.LeaveFull,
	})

	var ibe *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Available.Equal(days("2")))
	assert.True(t, ibe.Requested.Equal(days("5")))
	assert.True(t, ibe.Shortfall().Equal(days("3")))

	views, err := store.ListRequests(context.Background(), leave.RequestFilter{UserID: bob.ID})
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.True(t, remaining(t, store, bob.ID).Equal(days("2")))
	assert.Equal(t, 1, rec.applications["insufficient_balance"])
}

func TestApply_ValidationErrors(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	ctx := context.Background()

	_, err := svc.Apply(ctx, alice, leave.ApplyInput{EndDate: jan(2)})
	assert.ErrorIs(t, err, leave.ErrValidation)

	_, err = svc.Apply(ctx, alice, leave.ApplyInput{StartDate: jan(2)})
	assert.ErrorIs(t, err, leave.ErrValidation)

	_, err = svc.Apply(ctx, alice, leave.ApplyInput{StartDate: jan(1), EndDate: jan(2), LeaveType: "quarter"})
	var ve *leave.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "leaveType", ve.Field)
}

func TestApply_ReversedRange_CountsAbsoluteDistance(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)

	req := apply(t, svc, alice, jan(5), jan(1), leave.LeaveFull)
	assert.True(t, req.NumberOfDays.Equal(days("5")))
}

func TestApply_UnknownUser_NotFound(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	ghost := leave.Principal{ID: "ghost", Role: leave.RoleUser}

	_, err := svc.Apply(context.Background(), ghost, leave.ApplyInput{StartDate: jan(1), EndDate: jan(1)})
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func TestSetStatus_ApproveThenReject(t *testing.T) {
	rec := newRecorder()
	svc, store := newTestService(t, leave.Config{}, leave.WithRecorder(rec))
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(5), leave.LeaveFull)
	ctx := context.Background()

	// Approve: 20 -> 15
	approved, err := svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.True(t, remaining(t, store, alice.ID).Equal(days("15")))

	// Approving again is a no-op
	_, err = svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved)
	require.NoError(t, err)
	assert.True(t, remaining(t, store, alice.ID).Equal(days("15")))

	// Reject: 15 -> 20
	rejected, err := svc.SetStatus(ctx, admin, req.ID, leave.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.True(t, remaining(t, store, alice.ID).Equal(days("20")))

	assert.Equal(t, 1, rec.transitions["pending->approved"])
	assert.Equal(t, 1, rec.transitions["approved->rejected"])
}

func TestSetStatus_PendingToRejected_NoLedgerChange(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(5), leave.LeaveFull)

	_, err := svc.SetStatus(context.Background(), admin, req.ID, leave.StatusRejected)
	require.NoError(t, err)
	assert.True(t, remaining(t, store, alice.ID).Equal(days("20")))
}

func TestSetStatus_NonAdmin_Forbidden(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(5), leave.LeaveFull)

	_, err := svc.SetStatus(context.Background(), alice, req.ID, leave.StatusApproved)
	assert.ErrorIs(t, err, leave.ErrForbidden)

	got, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
}

func TestSetStatus_UnknownRequest_NotFound(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	_, err := svc.SetStatus(context.Background(), admin, "nope", leave.StatusApproved)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestSetStatus_BackToPending_Validation(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(1), leave.LeaveFull)
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, admin, req.ID, leave.StatusPending)
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestSetStatus_ApprovalReChecksBalance(t *testing.T) {
	// GIVEN: two pending 3-day requests against a 5-day balance
	// WHEN: approving both
	// THEN: the second approval fails and the ledger stays at 2
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 5)
	ctx := context.Background()

	r1 := apply(t, svc, alice, jan(1), jan(3), leave.LeaveFull)
	r2 := apply(t, svc, alice, jan(10), jan(12), leave.LeaveFull)

	_, err := svc.SetStatus(ctx, admin, r1.ID, leave.StatusApproved)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, admin, r2.ID, leave.StatusApproved)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	assert.True(t, remaining(t, store, alice.ID).Equal(days("2")))
	got, err := store.GetRequest(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
}

func TestSetStatus_OverdraftAllowed_Reported(t *testing.T) {
	rec := newRecorder()
	svc, store := newTestService(t, leave.Config{AllowOverdraft: true}, leave.WithRecorder(rec))
	alice := createUser(t, svc, "alice", 5)
	ctx := context.Background()

	r1 := apply(t, svc, alice, jan(1), jan(3), leave.LeaveFull)
	r2 := apply(t, svc, alice, jan(10), jan(12), leave.LeaveFull)

	_, err := svc.SetStatus(ctx, admin, r1.ID, leave.StatusApproved)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, admin, r2.ID, leave.StatusApproved)
	require.NoError(t, err)

	assert.True(t, remaining(t, store, alice.ID).Equal(days("-1")))
	assert.Equal(t, 1, rec.overdrafts)
}

// =============================================================================
// ATOMICITY
// =============================================================================

type failingAuditStore struct {
	*memstore.Memory
}

func (s failingAuditStore) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	return s.Memory.WithTx(ctx, func(tx leave.Tx) error { return fn(failingAuditTx{tx}) })
}

type failingAuditTx struct {
	leave.Tx
}

func (failingAuditTx) AppendAudit(context.Context, leave.AuditEntry) error {
	return errors.New("disk full")
}

func TestSetStatus_FailureMidTransition_NothingApplied(t *testing.T) {
	// GIVEN: a pending request
	// WHEN: the audit write fails after status and ledger were written
	// THEN: status and ledger are both unchanged
	mem := memstore.New()
	setup := leave.NewService(mem, leave.Config{})
	alice := createUser(t, setup, "alice", 20)
	req := apply(t, setup, alice, jan(1), jan(5), leave.LeaveFull)

	svc := leave.NewService(failingAuditStore{mem}, leave.Config{})
	_, err := svc.SetStatus(context.Background(), admin, req.ID, leave.StatusApproved)
	require.Error(t, err)

	got, err := mem.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.True(t, remaining(t, mem, alice.ID).Equal(days("20")))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSetStatus_ConcurrentApprovalsSameUser_NoLostUpdate(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 40)

	var ids []string
	for i := 0; i < 10; i++ {
		d := leave.NewDate(2025, time.February, i+1)
		ids = append(ids, apply(t, svc, alice, d, d.AddDays(1), leave.LeaveFull).ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SetStatus(context.Background(), admin, id, leave.StatusApproved)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.True(t, remaining(t, store, alice.ID).Equal(days("20")))
}

// autocommitStore runs every Tx call as its own short transaction, so a
// read-modify-write inside WithTx is not isolated by the store. LockUser
// waits at a gate until two callers have read the user (or a timeout
// passes), which makes interleaved reads deterministic when nothing
// else serializes them.
type autocommitStore struct {
	*memstore.Memory
	gate *readGate
}

func (s autocommitStore) WithTx(_ context.Context, fn func(leave.Tx) error) error {
	return fn(autocommitTx{m: s.Memory, gate: s.gate})
}

type readGate struct {
	mu      sync.Mutex
	arrived int
	want    int
	open    chan struct{}
}

func newReadGate(want int) *readGate {
	return &readGate{want: want, open: make(chan struct{})}
}

func (g *readGate) wait() {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.want {
		close(g.open)
	}
	g.mu.Unlock()

	select {
	case <-g.open:
	case <-time.After(50 * time.Millisecond):
	}
}

type autocommitTx struct {
	m    *memstore.Memory
	gate *readGate
}

func (a autocommitTx) each(ctx context.Context, fn func(leave.Tx) error) error {
	return a.m.WithTx(ctx, fn)
}

func (a autocommitTx) LockUser(ctx context.Context, id string) (*leave.User, error) {
	var u *leave.User
	err := a.each(ctx, func(tx leave.Tx) error {
		var err error
		u, err = tx.LockUser(ctx, id)
		return err
	})
	a.gate.wait()
	return u, err
}

func (a autocommitTx) UpdateUser(ctx context.Context, u leave.User) error {
	return a.each(ctx, func(tx leave.Tx) error { return tx.UpdateUser(ctx, u) })
}

func (a autocommitTx) DeleteUser(ctx context.Context, id string) error {
	return a.each(ctx, func(tx leave.Tx) error { return tx.DeleteUser(ctx, id) })
}

func (a autocommitTx) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	var r *leave.Request
	err := a.each(ctx, func(tx leave.Tx) error {
		var err error
		r, err = tx.GetRequest(ctx, id)
		return err
	})
	return r, err
}

func (a autocommitTx) InsertRequest(ctx context.Context, r leave.Request) error {
	return a.each(ctx, func(tx leave.Tx) error { return tx.InsertRequest(ctx, r) })
}

func (a autocommitTx) UpdateRequestStatus(ctx context.Context, id string, status leave.Status, at time.Time) error {
	return a.each(ctx, func(tx leave.Tx) error { return tx.UpdateRequestStatus(ctx, id, status, at) })
}

func (a autocommitTx) DeleteRequest(ctx context.Context, id string) error {
	return a.each(ctx, func(tx leave.Tx) error { return tx.DeleteRequest(ctx, id) })
}

func (a autocommitTx) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	return a.each(ctx, func(tx leave.Tx) error { return tx.AppendAudit(ctx, e) })
}

// noLock lets every caller through immediately.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// approveConcurrently files two 5-day requests for a 20-day user on a
// store that does not isolate transactions, approves both at once, and
// returns the resulting balance.
func approveConcurrently(t *testing.T, opts ...leave.Option) decimal.Decimal {
	t.Helper()
	mem := memstore.New()
	setup := leave.NewService(mem, leave.Config{}, leave.WithClock(tickingClock()))
	alice := createUser(t, setup, "alice", 20)
	first := apply(t, setup, alice, jan(6), jan(10), leave.LeaveFull)
	second := apply(t, setup, alice, jan(13), jan(17), leave.LeaveFull)

	store := autocommitStore{Memory: mem, gate: newReadGate(2)}
	svc := leave.NewService(store, leave.Config{}, opts...)

	var wg sync.WaitGroup
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SetStatus(context.Background(), admin, id, leave.StatusApproved)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	return remaining(t, mem, alice.ID)
}

func TestSetStatus_PerUserLockPreventsLostUpdate(t *testing.T) {
	// GIVEN: a store whose transactions do not isolate the user row
	// WHEN: two approvals for the same user run at once under the default keyed lock
	// THEN: both deductions land (20 - 5 - 5 = 10)
	got := approveConcurrently(t)
	assert.True(t, got.Equal(days("10")), "remaining = %s", got)
}

func TestSetStatus_WithoutLock_UpdateIsLost(t *testing.T) {
	// GIVEN: the same store with locking disabled
	// WHEN: both approvals read the balance before either writes
	// THEN: one deduction overwrites the other, showing the lock is what protects the ledger
	got := approveConcurrently(t, leave.WithLocker(noLock{}))
	assert.True(t, got.Equal(days("15")), "remaining = %s", got)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_ApprovedRestoresBalance(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(5), leave.LeaveFull)
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved)
	require.NoError(t, err)
	require.True(t, remaining(t, store, alice.ID).Equal(days("15")))

	require.NoError(t, svc.Delete(ctx, alice, req.ID))

	assert.True(t, remaining(t, store, alice.ID).Equal(days("20")))
	_, err = store.GetRequest(ctx, req.ID)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestDelete_PendingOrRejected_NoLedgerChange(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	ctx := context.Background()

	pending := apply(t, svc, alice, jan(1), jan(2), leave.LeaveFull)
	rejected := apply(t, svc, alice, jan(3), jan(4), leave.LeaveFull)
	_, err := svc.SetStatus(ctx, admin, rejected.ID, leave.StatusRejected)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, admin, pending.ID))
	require.NoError(t, svc.Delete(ctx, alice, rejected.ID))

	assert.True(t, remaining(t, store, alice.ID).Equal(days("20")))
}

func TestDelete_OtherUsersRequest_Forbidden(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	bob := createUser(t, svc, "bob", 20)
	req := apply(t, svc, alice, jan(1), jan(2), leave.LeaveFull)

	err := svc.Delete(context.Background(), bob, req.ID)
	assert.ErrorIs(t, err, leave.ErrForbidden)

	_, err = store.GetRequest(context.Background(), req.ID)
	assert.NoError(t, err)
}

func TestDelete_Unknown_NotFound(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	assert.ErrorIs(t, svc.Delete(context.Background(), admin, "nope"), leave.ErrNotFound)
}

// =============================================================================
// QUOTA & USERS
// =============================================================================

func TestAdjustQuota_AppliesDelta(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(5), leave.LeaveFull)
	ctx := context.Background()
	_, err := svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved)
	require.NoError(t, err)

	// 20 -> 25 quota with 15 remaining gives 20
	u, err := svc.AdjustQuota(ctx, admin, alice.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, u.AnnualLeaveQuota)
	assert.True(t, u.RemainingLeaves.Equal(days("20")))

	// 25 -> 10 gives 5
	u, err = svc.AdjustQuota(ctx, admin, alice.ID, 10)
	require.NoError(t, err)
	assert.True(t, u.RemainingLeaves.Equal(days("5")))
	assert.True(t, remaining(t, store, alice.ID).Equal(days("5")))
}

func TestAdjustQuota_NonAdmin_Forbidden(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)

	_, err := svc.AdjustQuota(context.Background(), alice, alice.ID, 100)
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestAdjustQuota_Negative_Validation(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)

	_, err := svc.AdjustQuota(context.Background(), admin, alice.ID, -1)
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestCreateUser_NonAdminGetsDefaults(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{DefaultQuota: 18})
	quota := 99

	u, err := svc.CreateUser(context.Background(), leave.Principal{}, leave.NewUser{
		Name: "Eve", Email: " Eve@Example.com ", PasswordHash: "h",
		Role: leave.RoleAdmin, AnnualLeaveQuota: &quota,
	})
	require.NoError(t, err)
	assert.Equal(t, leave.RoleUser, u.Role)
	assert.Equal(t, 18, u.AnnualLeaveQuota)
	assert.True(t, u.RemainingLeaves.Equal(days("18")))
	assert.Equal(t, "eve@example.com", u.Email)
}

func TestCreateUser_DuplicateEmail_Conflict(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	createUser(t, svc, "alice", 20)

	_, err := svc.CreateUser(context.Background(), leave.Principal{}, leave.NewUser{
		Name: "Alice 2", Email: "alice@example.com", PasswordHash: "h",
	})
	assert.ErrorIs(t, err, leave.ErrConflict)
}

func TestUpdateProfile_OnlyIdentityFields(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	name := "Alice Liddell"

	u, err := svc.UpdateProfile(context.Background(), alice, leave.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, u.Name)
	assert.Equal(t, 20, u.AnnualLeaveQuota)
}

func TestDeleteUser_CascadesRequests(t *testing.T) {
	svc, store := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(2), leave.LeaveFull)
	ctx := context.Background()

	require.NoError(t, svc.DeleteUser(ctx, admin, alice.ID))

	_, err := store.GetUser(ctx, alice.ID)
	assert.ErrorIs(t, err, leave.ErrNotFound)
	_, err = store.GetRequest(ctx, req.ID)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestDeleteUser_Self_Validation(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	assert.ErrorIs(t, svc.DeleteUser(context.Background(), admin, admin.ID), leave.ErrValidation)
}

// =============================================================================
// READS
// =============================================================================

func TestList_UserSeesOnlyOwn_AdminSeesAll(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	bob := createUser(t, svc, "bob", 20)
	ctx := context.Background()

	first := apply(t, svc, alice, jan(1), jan(1), leave.LeaveFull)
	second := apply(t, svc, alice, jan(2), jan(2), leave.LeaveFull)
	apply(t, svc, bob, jan(3), jan(3), leave.LeaveFull)

	// Bob asks for Alice's requests but only sees his own
	mine, err := svc.List(ctx, bob, leave.RequestFilter{UserID: alice.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, bob.ID, mine[0].UserID)

	all, err := svc.List(ctx, admin, leave.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	aliceOnly, err := svc.List(ctx, admin, leave.RequestFilter{UserID: alice.ID})
	require.NoError(t, err)
	require.Len(t, aliceOnly, 2)
	assert.Equal(t, second.ID, aliceOnly[0].ID, "newest first")
	assert.Equal(t, first.ID, aliceOnly[1].ID)
	assert.Equal(t, "alice", aliceOnly[0].UserName)
}

func TestGet_Visibility(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	bob := createUser(t, svc, "bob", 20)
	req := apply(t, svc, alice, jan(1), jan(1), leave.LeaveFull)
	ctx := context.Background()

	_, err := svc.Get(ctx, alice, req.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, admin, req.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, bob, req.ID)
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestCalendar_ApprovedOverlappingOnly(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	bob := createUser(t, svc, "bob", 20)
	ctx := context.Background()

	inRange := apply(t, svc, alice, jan(10), jan(12), leave.LeaveFull)
	pending := apply(t, svc, bob, jan(10), jan(11), leave.LeaveFull)
	outside := apply(t, svc, bob, leave.NewDate(2025, time.March, 1), leave.NewDate(2025, time.March, 2), leave.LeaveFull)
	for _, id := range []string{inRange.ID, outside.ID} {
		_, err := svc.SetStatus(ctx, admin, id, leave.StatusApproved)
		require.NoError(t, err)
	}
	_ = pending

	got, err := svc.Calendar(ctx, bob, jan(1), jan(31))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inRange.ID, got[0].ID)
}

func TestCalendar_InvalidRange(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	ctx := context.Background()

	_, err := svc.Calendar(ctx, alice, jan(31), jan(1))
	assert.ErrorIs(t, err, leave.ErrValidation)

	_, err = svc.Calendar(ctx, alice, jan(1), leave.NewDate(2027, time.January, 1))
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestHistory_RecordsEveryLedgerEvent(t *testing.T) {
	svc, _ := newTestService(t, leave.Config{})
	alice := createUser(t, svc, "alice", 20)
	req := apply(t, svc, alice, jan(1), jan(2), leave.LeaveFull)
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, admin, req.ID, leave.StatusApproved) // no-op, no row
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, admin, req.ID, leave.StatusRejected)
	require.NoError(t, err)

	entries, err := svc.History(ctx, alice, req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, leave.AuditApplied, entries[0].Action)
	assert.Equal(t, admin.ID, entries[1].ActorID)
	assert.True(t, entries[1].Delta.Equal(days("-2")))
	assert.True(t, entries[2].Delta.Equal(days("2")))

	net := decimal.Zero
	for _, e := range entries {
		net = net.Add(e.Delta)
	}
	assert.True(t, net.IsZero(), fmt.Sprintf("net delta %s", net))
}
