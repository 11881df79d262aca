package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sjperalta/interlock-api/internal/authority"
	"github.com/sjperalta/interlock-api/internal/config"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/internal/repository/memstore"
	"github.com/sjperalta/interlock-api/internal/storage"
	"github.com/stretchr/testify/require"
)

// fixture wires the services on the in-memory store with a movable clock
type fixture struct {
	svcs  *Services
	store *memstore.Store
	repos *repository.Repositories
	auth  *authority.Mock
	blobs storage.BlobStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return newFixtureWithBlobs(t, local)
}

func newFixtureWithBlobs(t *testing.T, blobs storage.BlobStore) *fixture {
	t.Helper()
	store := memstore.New()
	f := &fixture{
		store: store,
		repos: store.Repositories(),
		auth:  authority.NewMock(),
		blobs: blobs,
		now:   time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	f.svcs = NewServices(Deps{
		Repos:     f.repos,
		Blobs:     blobs,
		Authority: f.auth,
		Config: &config.Config{
			SweepWorkers:      4,
			ReminderDaysAhead: 3,
			LogMaxRows:        1000,
			AuthorityTimeout:  200 * time.Millisecond,
		},
	})
	f.svcs.SetClock(func() time.Time { return f.now })
	return f
}

// setDate moves the clock to a calendar date, keeping the time of day
func (f *fixture) setDate(t *testing.T, date string) {
	t.Helper()
	d, err := models.ParseDate(date)
	require.NoError(t, err)
	f.now = d.Add(9*time.Hour + 30*time.Minute)
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

// csvLog builds a device export with the given rows
func csvLog(rows ...string) []byte {
	var b strings.Builder
	b.WriteString("timestamp,testResult,deviceStatus,alcoholLevel\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "2024-03-%02dT08:00:00,%s\n", i%28+1, row)
	}
	return []byte(b.String())
}

// passingLog is n clean tests
func passingLog(n int) []byte {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "PASS,OK,0.0000"
	}
	return csvLog(rows...)
}

func submitInput(subjectID uint, start, end string, data []byte) SubmitInput {
	s, _ := models.ParseDate(start)
	e, _ := models.ParseDate(end)
	return SubmitInput{
		DeviceID:    subjectID + 1000,
		SubjectID:   subjectID,
		PeriodStart: s,
		PeriodEnd:   e,
		FileName:    "log.csv",
		MimeType:    "text/csv",
		Data:        data,
	}
}

// unreadableBlobs stores files but can never open them again
type unreadableBlobs struct {
	storage.BlobStore
}

func (u unreadableBlobs) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, errors.New("disk detached")
}

// failingScheduleRepo fails updates for one subject
type failingScheduleRepo struct {
	repository.ScheduleRepository
	failSubject uint
}

func (r *failingScheduleRepo) Update(ctx context.Context, schedule *models.SubmissionSchedule) error {
	if schedule.SubjectID == r.failSubject {
		return errors.New("write conflict")
	}
	return r.ScheduleRepository.Update(ctx, schedule)
}
