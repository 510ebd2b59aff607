package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
)

var (
	validIdentity = Fragment{
		"firstName":   "Ada",
		"lastName":    "Lovelace",
		"email":       "ada@example.com",
		"phoneNumber": "3125550100",
	}
	validLocation = Fragment{"serviceAddress": "1 Main St", "city": "Chicago", "state": "IL"}
	validUtility  = Fragment{"electricUtilityProvider": "ComEd"}
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess, err := NewStore(DefaultSteps(), time.Hour).Create("u1")
	require.NoError(t, err)
	return sess
}

func pdf(name string, size int64) documents.File {
	return documents.File{Name: name, Size: size, MediaType: "application/pdf", Data: []byte("%PDF")}
}

func TestSubmitStepAdvancesAndArmsFlush(t *testing.T) {
	sess := newTestSession(t)
	assert.False(t, sess.Dirty())

	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))

	p := sess.Progress()
	assert.Equal(t, 2, p.CurrentStep)
	assert.Equal(t, StepLocation, p.StepID)
	assert.True(t, sess.Dirty())
}

func TestSubmitStepValidationLeavesStateUnchanged(t *testing.T) {
	sess := newTestSession(t)

	err := sess.SubmitStep(StepIdentity, Fragment{"firstName": "Ada", "email": "not-an-email", "phoneNumber": "123"})

	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ValidationFailed, e.Kind)
	assert.Contains(t, e.Fields, "lastName")
	assert.Contains(t, e.Fields, "email")
	assert.Contains(t, e.Fields, "phoneNumber")
	assert.Equal(t, 1, sess.Progress().CurrentStep)
	assert.Empty(t, sess.MergedData())
	assert.False(t, sess.Dirty())
}

func TestSubmitStepRejectsSkippingAhead(t *testing.T) {
	sess := newTestSession(t)

	err := sess.SubmitStep(StepUtility, validUtility)

	assert.Equal(t, errs.StepOutOfOrder, errs.KindOf(err))
	assert.Equal(t, errs.NotFound, errs.KindOf(sess.SubmitStep("payment", Fragment{})))
}

func TestSubmitStepDropsUndeclaredFields(t *testing.T) {
	sess := newTestSession(t)
	in := Fragment{"city": "Springfield", "isAdmin": "true"}
	for k, v := range validIdentity {
		in[k] = v
	}

	require.NoError(t, sess.SubmitStep(StepIdentity, in))

	merged := sess.MergedData()
	assert.NotContains(t, merged, "isAdmin")
	assert.NotContains(t, merged, "city")
}

func TestStateValidation(t *testing.T) {
	tests := []struct {
		name  string
		state string
		ok    bool
	}{
		{name: "two_letters", state: "IL", ok: true},
		{name: "lowercase", state: "il", ok: true},
		{name: "too_long", state: "ILL"},
		{name: "digits", state: "12"},
		{name: "empty", state: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newTestSession(t)
			require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
			err := sess.SubmitStep(StepLocation, Fragment{"serviceAddress": "1 Main", "city": "Chicago", "state": tt.state})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, errs.ValidationFailed, errs.KindOf(err))
			}
		})
	}
}

func TestResubmitAfterGoBackOverwritesOnlyThatStep(t *testing.T) {
	sess := newTestSession(t)
	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
	require.NoError(t, sess.SubmitStep(StepLocation, validLocation))
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))

	assert.Equal(t, 3, sess.GoBack())
	assert.Equal(t, 2, sess.GoBack())
	require.NoError(t, sess.SubmitStep(StepLocation, Fragment{"serviceAddress": "9 Oak Ave", "city": "Peoria", "state": "IL"}))

	merged := sess.MergedData()
	assert.Equal(t, "9 Oak Ave", merged["serviceAddress"])
	assert.Equal(t, "Peoria", merged["city"])
	assert.Equal(t, "Ada", merged["firstName"])
	assert.Equal(t, "ComEd", merged["electricUtilityProvider"])
	assert.Equal(t, 3, sess.Progress().CurrentStep)
}

func TestGoBackFloorsAtFirstStep(t *testing.T) {
	sess := newTestSession(t)

	assert.Equal(t, 1, sess.GoBack())
	assert.Equal(t, 1, sess.GoBack())
}

func TestDirtyFlagCycle(t *testing.T) {
	sess := newTestSession(t)
	_, due := sess.TakeFlush()
	assert.False(t, due, "nothing entered yet")

	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
	snap, due := sess.TakeFlush()
	require.True(t, due)
	assert.Equal(t, 2, snap.CurrentStep)
	assert.Equal(t, 1, snap.LastSubmitted)
	assert.Equal(t, "Ada", snap.Data["firstName"])
	assert.False(t, sess.Dirty())

	_, due = sess.TakeFlush()
	assert.False(t, due, "no change since last flush")

	require.NoError(t, sess.SubmitStep(StepLocation, validLocation))
	assert.True(t, sess.Dirty())
}

func fillSteps(t *testing.T, sess *Session) {
	t.Helper()
	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
	require.NoError(t, sess.SubmitStep(StepLocation, validLocation))
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))
}

func TestBeginFinalizeDisarmsPermanently(t *testing.T) {
	sess := newTestSession(t)
	fillSteps(t, sess)

	_, err := sess.BeginFinalize()
	require.NoError(t, err)
	_, due := sess.TakeFlush()
	assert.False(t, due)

	sess.GoBack()
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))
	_, due = sess.TakeFlush()
	assert.False(t, due)

	sess.AbortFinalize()
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))
	_, due = sess.TakeFlush()
	assert.False(t, due, "an aborted submission stays disarmed")
}

func TestBeginFinalizeRefusesConcurrentClaim(t *testing.T) {
	sess := newTestSession(t)
	fillSteps(t, sess)

	_, err := sess.BeginFinalize()
	require.NoError(t, err)

	_, err = sess.BeginFinalize()
	assert.Equal(t, errs.SubmissionInProgress, errs.KindOf(err))

	sess.AbortFinalize()
	_, err = sess.BeginFinalize()
	require.NoError(t, err, "released claim can be retaken")

	sess.MarkCompleted()
	_, err = sess.BeginFinalize()
	assert.Equal(t, errs.AlreadyCompleted, errs.KindOf(err))
}

func TestSnapshotListsClearedFields(t *testing.T) {
	sess := newTestSession(t)
	withMiddle := Fragment{"middleInitial": "B"}
	for k, v := range validIdentity {
		withMiddle[k] = v
	}
	require.NoError(t, sess.SubmitStep(StepIdentity, withMiddle))
	require.NoError(t, sess.SubmitStep(StepLocation, Fragment{
		"serviceAddress": "1 Main St", "city": "Chicago", "state": "IL", "zipCode": "60601",
	}))

	sess.GoBack()
	sess.GoBack()
	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
	require.NoError(t, sess.SubmitStep(StepLocation, Fragment{
		"serviceAddress": "1 Main St", "city": "Chicago", "state": "IL", "zipCode": "  ",
	}))

	snap, due := sess.TakeFlush()
	require.True(t, due)
	assert.ElementsMatch(t, []string{"middleInitial", "zipCode"}, snap.Cleared)
	assert.NotContains(t, snap.Data, "zipCode")
	assert.NotContains(t, snap.Cleared, "electricUtilityProvider", "unsubmitted steps are not cleared")
}

func TestSelectDocuments(t *testing.T) {
	sess := newTestSession(t)
	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
	require.NoError(t, sess.SubmitStep(StepLocation, validLocation))
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))
	_, _ = sess.TakeFlush()

	rejected, err := sess.SelectDocuments([]documents.File{
		pdf("jan.pdf", 1<<20),
		{Name: "photo.gif", Size: 10, MediaType: "image/gif"},
		pdf("huge.pdf", documents.MaxFileSize+1),
		pdf("feb.pdf", 1<<20),
		pdf("mar.pdf", 1<<20),
		pdf("apr.pdf", 1<<20),
	})

	require.NoError(t, err)
	require.Len(t, rejected, 3)
	assert.Equal(t, errs.UnsupportedType, errs.KindOf(rejected[0].Err))
	assert.Equal(t, errs.TooLarge, errs.KindOf(rejected[1].Err))
	assert.Equal(t, "apr.pdf", rejected[2].FileName)

	docs := sess.Documents()
	require.Len(t, docs, MaxBills)
	assert.Equal(t, "jan.pdf", docs[0].File.Name)
	assert.Equal(t, 5, sess.Progress().CurrentStep)
	assert.True(t, sess.Dirty())

	snap, _ := sess.TakeFlush()
	assert.Len(t, snap.Documents, 3)
	assert.Equal(t, 2, snap.Documents[2].Index)
}

func TestSelectDocumentsBeforeStepFour(t *testing.T) {
	sess := newTestSession(t)

	_, err := sess.SelectDocuments([]documents.File{pdf("jan.pdf", 10)})

	assert.Equal(t, errs.StepOutOfOrder, errs.KindOf(err))
}

func TestReviewStepCannotBeSubmittedDirectly(t *testing.T) {
	sess := newTestSession(t)
	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))
	require.NoError(t, sess.SubmitStep(StepLocation, validLocation))
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))
	require.NoError(t, sess.SubmitStep(StepDocuments, nil))

	assert.Equal(t, errs.StepOutOfOrder, errs.KindOf(sess.SubmitStep(StepConfirmation, Fragment{})))
}

func TestBeginFinalizeRevalidatesWithoutDisarming(t *testing.T) {
	sess := newTestSession(t)
	require.NoError(t, sess.SubmitStep(StepIdentity, validIdentity))

	_, err := sess.BeginFinalize()
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ValidationFailed, e.Kind)
	assert.Contains(t, e.Fields, "city")
	assert.Contains(t, e.Fields, "electricUtilityProvider")

	_, due := sess.TakeFlush()
	assert.True(t, due, "rejected submission keeps partial capture armed")

	require.NoError(t, sess.SubmitStep(StepLocation, validLocation))
	require.NoError(t, sess.SubmitStep(StepUtility, validUtility))
	_, err = sess.BeginFinalize()
	assert.NoError(t, err)
}

func TestCompletedSessionRefusesSteps(t *testing.T) {
	sess := newTestSession(t)
	sess.MarkCompleted()

	assert.True(t, sess.Completed())
	assert.Equal(t, errs.AlreadyCompleted, errs.KindOf(sess.SubmitStep(StepIdentity, validIdentity)))
}

func TestStoreOwnership(t *testing.T) {
	store := NewStore(DefaultSteps(), time.Hour)

	_, err := store.Create("")
	assert.Equal(t, errs.Unauthorized, errs.KindOf(err))

	sess, err := store.Create("u1")
	require.NoError(t, err)

	got, err := store.Get(sess.ID(), "u1")
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = store.Get(sess.ID(), "u2")
	assert.Equal(t, errs.Forbidden, errs.KindOf(err))
	_, err = store.Get("missing", "u1")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	store.Delete(sess.ID())
	assert.Zero(t, store.Len())
}

func TestStorePrunesIdleSessions(t *testing.T) {
	store := NewStore(DefaultSteps(), time.Hour)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stale, _ := store.Create("u1")
	now = now.Add(50 * time.Minute)
	fresh, _ := store.Create("u2")
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, store.Prune())
	_, err := store.Get(stale.ID(), "u1")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	_, err = store.Get(fresh.ID(), "u2")
	assert.NoError(t, err)
}

func TestLookup(t *testing.T) {
	steps := DefaultSteps()

	byID, ok := Lookup(steps, "location")
	require.True(t, ok)
	byNum, ok := Lookup(steps, "2")
	require.True(t, ok)
	assert.Equal(t, byID.ID, byNum.ID)

	_, ok = Lookup(steps, "7")
	assert.False(t, ok)
}
