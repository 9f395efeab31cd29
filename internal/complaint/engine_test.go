package complaint

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"raggingwatch/internal/db"
	"raggingwatch/internal/evidence"
	"raggingwatch/internal/models"
	"raggingwatch/internal/store"
)

type fixture struct {
	engine   *Engine
	store    *store.Store
	evidence *evidence.LocalStore
	dir      string
	admin    models.Principal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	_, err = db.Migrate(ctx, sqdb, db.DriverSQLite)
	require.NoError(t, err)
	st := store.New(sqdb, db.DriverSQLite)

	dir := t.TempDir()
	ev, err := evidence.NewLocalStore(dir, "enc", "sign", "http://localhost:8080")
	require.NoError(t, err)

	require.NoError(t, st.EnsureAdmin(ctx, "admin@uni.test", "Warden", "hash"))
	acct, err := st.GetAccountByEmail(ctx, "admin@uni.test")
	require.NoError(t, err)

	return fixture{
		engine:   NewEngine(st, ev, zap.NewNop(), Options{}),
		store:    st,
		evidence: ev,
		dir:      dir,
		admin:    models.AdminPrincipal(acct.ID, acct.Email, acct.FullName),
	}
}

func (f fixture) student(t *testing.T, email string) models.Principal {
	t.Helper()
	a, err := f.store.CreateAccount(context.Background(), models.Account{
		Email:         email,
		PasswordHash:  "hash",
		Role:          models.RoleStudent,
		FullName:      "Student",
		EmailVerified: true,
	}, nil)
	require.NoError(t, err)
	return models.StudentPrincipal(a.ID, a.Email, a.FullName)
}

func validSubmission() Submission {
	return Submission{
		IncidentDate:     "2026-02-14",
		IncidentTime:     "22:15",
		IncidentLocation: "Hostel Block B, Room 12",
		Category:         "physical",
		Description:      "Seniors made first years do push-ups until they collapsed.",
	}
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSubmitAttributedComplaint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stu := f.student(t, "asha@uni.test")

	receipt, err := f.engine.Submit(ctx, stu, validSubmission())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^RA-\d{4}-\d{4}$`), receipt.TrackingNumber)
	assert.Empty(t, receipt.EvidenceURL)

	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, c.Status)
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, stu.ID, *c.OwnerID)

	history, err := f.store.ListHistory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusPending, history[0].Status)
	require.NotNil(t, history[0].Notes)
	assert.Equal(t, "Complaint submitted", *history[0].Notes)
}

func TestSubmitAnonymousNeverRecordsOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stu := f.student(t, "anon@uni.test")

	in := validSubmission()
	in.Anonymous = true
	receipt, err := f.engine.Submit(ctx, stu, in)
	require.NoError(t, err)

	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)
	assert.Nil(t, c.OwnerID)

	internal := "Spoke to the hostel warden"
	_, err = f.engine.Transition(ctx, f.admin, c.ID, TransitionRequest{Status: "Investigating", InternalNotes: &internal})
	require.NoError(t, err)

	c, err = f.store.GetComplaintByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, c.OwnerID)

	mine, err := f.engine.ListMine(ctx, stu)
	require.NoError(t, err)
	assert.Empty(t, mine)

	av, err := f.engine.AdminView(ctx, f.admin, c.ID)
	require.NoError(t, err)
	assert.Nil(t, av.OwnerID)
}

func TestSubmitWithoutSessionIsUnattributed(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.engine.Submit(context.Background(), models.Principal{}, validSubmission())
	require.NoError(t, err)
	c, err := f.store.GetComplaintByTrackingNumber(context.Background(), receipt.TrackingNumber)
	require.NoError(t, err)
	assert.Nil(t, c.OwnerID)
	assert.False(t, c.Anonymous)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	in := validSubmission()
	in.IncidentDate = ""
	in.IncidentLocation = "   "
	in.Category = "hazing"

	_, err := f.engine.Submit(context.Background(), models.Principal{}, in)
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"incident_date", "incident_location", "category"}, verr.Fields)

	_, total, err := f.store.ListComplaints(context.Background(), models.ComplaintQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSubmitEvidencePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validSubmission()
	in.Evidence = &Attachment{FileName: "big.png", ContentType: "image/png", Data: bytes.Repeat([]byte{1}, 5242881)}
	_, err := f.engine.Submit(ctx, models.Principal{}, in)
	assert.ErrorIs(t, err, ErrInvalidEvidence)

	in.Evidence = &Attachment{FileName: "dump.zip", ContentType: "application/zip", Data: []byte("PK")}
	_, err = f.engine.Submit(ctx, models.Principal{}, in)
	assert.ErrorIs(t, err, ErrInvalidEvidence)

	assert.Empty(t, storedFiles(t, f.dir))
	_, total, err := f.store.ListComplaints(ctx, models.ComplaintQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)

	in.Evidence = &Attachment{FileName: `C:\docs\statement.pdf`, ContentType: "application/pdf", Data: bytes.Repeat([]byte{'x'}, 2*1024*1024)}
	receipt, err := f.engine.Submit(ctx, models.Principal{}, in)
	require.NoError(t, err)
	assert.Contains(t, receipt.EvidenceURL, "/api/v1/evidence/"+receipt.TrackingNumber+"_")

	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)
	require.NotNil(t, c.Evidence)
	assert.Equal(t, "statement.pdf", c.Evidence.FileName)
	assert.Equal(t, int64(2*1024*1024), c.Evidence.Size)
	assert.Equal(t, []string{c.Evidence.Ref}, storedFiles(t, f.dir))
}

func TestSubmitTrackingCollisionRetriesThenConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.intn = func(int) int { return 0 }
	first, err := f.engine.Submit(ctx, models.Principal{}, validSubmission())
	require.NoError(t, err)

	// The first two draws collide with the existing number.
	calls := 0
	f.engine.intn = func(n int) int {
		calls++
		if calls <= 2 {
			return 0
		}
		return 8999
	}
	second, err := f.engine.Submit(ctx, models.Principal{}, validSubmission())
	require.NoError(t, err)
	assert.NotEqual(t, first.TrackingNumber, second.TrackingNumber)
	assert.Equal(t, 3, calls)

	f.engine.intn = func(int) int { return 8999 }
	in := validSubmission()
	in.Evidence = &Attachment{FileName: "a.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	_, err = f.engine.Submit(ctx, models.Principal{}, in)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, storedFiles(t, f.dir), "evidence from failed attempts must be removed")

	_, total, err := f.store.ListComplaints(ctx, models.ComplaintQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestSubmitRetriesWhenEvidenceKeyIsTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return at }

	taken := evidence.ObjectKey("RA-2026-1000", at, "image/png")
	_, err := f.evidence.Put(ctx, taken, "image/png", []byte("earlier upload"))
	require.NoError(t, err)

	calls := 0
	f.engine.intn = func(int) int {
		calls++
		if calls == 1 {
			return 0
		}
		return 1
	}
	in := validSubmission()
	in.Evidence = &Attachment{FileName: "a.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	receipt, err := f.engine.Submit(ctx, models.Principal{}, in)
	require.NoError(t, err)
	assert.Equal(t, "RA-2026-1001", receipt.TrackingNumber)

	kept, _, err := f.evidence.Open(ctx, taken)
	require.NoError(t, err)
	assert.Equal(t, []byte("earlier upload"), kept)
	assert.Len(t, storedFiles(t, f.dir), 2)
}

func TestPublicViewHidesInternalNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stu := f.student(t, "ravi@uni.test")

	receipt, err := f.engine.Submit(ctx, stu, validSubmission())
	require.NoError(t, err)
	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)

	internal := "Accused is the warden's nephew"
	public := "Issue addressed"
	_, err = f.engine.Transition(ctx, f.admin, c.ID, TransitionRequest{Status: "Resolved", InternalNotes: &internal, PublicNotes: &public})
	require.NoError(t, err)

	pv, err := f.engine.PublicView(ctx, "  "+strings.ToLower(receipt.TrackingNumber)+" ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, pv.Status)
	require.NotNil(t, pv.PublicNotes)
	assert.Equal(t, "Issue addressed", *pv.PublicNotes)

	ov, err := f.engine.OwnerView(ctx, stu, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, ov.Status)
	assert.Equal(t, "Issue addressed", *ov.PublicNotes)

	av, err := f.engine.AdminView(ctx, f.admin, c.ID)
	require.NoError(t, err)
	require.NotNil(t, av.InternalNotes)
	assert.Equal(t, internal, *av.InternalNotes)
	assert.Equal(t, "Issue addressed", *av.PublicNotes)
}

func TestOwnerViewIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.student(t, "a@uni.test")
	b := f.student(t, "b@uni.test")

	receipt, err := f.engine.Submit(ctx, b, validSubmission())
	require.NoError(t, err)
	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)

	_, err = f.engine.OwnerView(ctx, a, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.OwnerView(ctx, a, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.OwnerView(ctx, models.Principal{}, c.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.EvidenceHandle(ctx, a, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.OwnerView(ctx, b, c.ID)
	assert.NoError(t, err)
}

func TestTransitionAppendsExactlyOneEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt, err := f.engine.Submit(ctx, models.Principal{}, validSubmission())
	require.NoError(t, err)
	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)

	steps := []string{"Under Review", "investigating", "Resolved", "Pending", "Closed", "Closed"}
	for _, step := range steps {
		before, err := f.engine.History(ctx, f.admin, c.ID)
		require.NoError(t, err)

		entry, err := f.engine.Transition(ctx, f.admin, c.ID, TransitionRequest{Status: step})
		require.NoError(t, err)

		after, err := f.engine.History(ctx, f.admin, c.ID)
		require.NoError(t, err)
		require.Len(t, after, len(before)+1)
		assert.Equal(t, before, after[:len(before)])
		assert.Equal(t, entry.ID, after[len(after)-1].ID)
		require.NotNil(t, entry.ActingAdminID)
		assert.Equal(t, f.admin.ID, *entry.ActingAdminID)
	}
}

func TestTransitionAuthorizationAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stu := f.student(t, "s@uni.test")
	receipt, err := f.engine.Submit(ctx, stu, validSubmission())
	require.NoError(t, err)
	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, stu, c.ID, TransitionRequest{Status: "Resolved"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.Transition(ctx, models.Principal{}, c.ID, TransitionRequest{Status: "Resolved"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.Transition(ctx, f.admin, "missing", TransitionRequest{Status: "Resolved"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.Transition(ctx, f.admin, c.ID, TransitionRequest{Status: "Archived"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.AdminView(ctx, stu, c.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = f.engine.ListAll(ctx, stu, ListFilter{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.History(ctx, f.admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublicViewUnknownTrackingNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, number := range []string{"RA-2026-0000", "RA-2405-07", "not-a-number", ""} {
		_, err := f.engine.PublicView(ctx, number)
		assert.ErrorIs(t, err, ErrNotFound, number)
	}
}

func TestListAllFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		r, err := f.engine.Submit(ctx, models.Principal{}, validSubmission())
		require.NoError(t, err)
		c, err := f.store.GetComplaintByTrackingNumber(ctx, r.TrackingNumber)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := f.engine.Transition(ctx, f.admin, ids[0], TransitionRequest{Status: "under_review"})
	require.NoError(t, err)

	items, total, err := f.engine.ListAll(ctx, f.admin, ListFilter{Status: "Under Review"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, ids[0], items[0].ID)

	_, total, err = f.engine.ListAll(ctx, f.admin, ListFilter{Status: "all"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, _, err = f.engine.ListAll(ctx, f.admin, ListFilter{Status: "Archived"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEvidenceHandleAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stu := f.student(t, "e@uni.test")

	in := validSubmission()
	in.Evidence = &Attachment{FileName: "photo.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	receipt, err := f.engine.Submit(ctx, stu, in)
	require.NoError(t, err)
	c, err := f.store.GetComplaintByTrackingNumber(ctx, receipt.TrackingNumber)
	require.NoError(t, err)

	url, err := f.engine.EvidenceHandle(ctx, stu, c.ID)
	require.NoError(t, err)
	assert.Contains(t, url, c.Evidence.Ref)
	_, err = f.engine.EvidenceHandle(ctx, f.admin, c.ID)
	require.NoError(t, err)
	_, err = f.engine.EvidenceHandle(ctx, models.Principal{}, c.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	plain, err := f.engine.Submit(ctx, stu, validSubmission())
	require.NoError(t, err)
	pc, err := f.store.GetComplaintByTrackingNumber(ctx, plain.TrackingNumber)
	require.NoError(t, err)
	_, err = f.engine.EvidenceHandle(ctx, f.admin, pc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
