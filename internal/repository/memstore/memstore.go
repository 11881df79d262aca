// Package memstore keeps every record in process memory. It backs
// STORE_DRIVER=memory and the service tests; it has no durability.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository"
	"gorm.io/gorm"
)

var (
	_ repository.LogRepository          = (*logRepo)(nil)
	_ repository.ScheduleRepository     = (*scheduleRepo)(nil)
	_ repository.ActionRepository       = (*actionRepo)(nil)
	_ repository.NotificationRepository = (*notificationRepo)(nil)
	_ repository.AuditRepository        = (*auditRepo)(nil)
)

// Store is an in-memory record store
type Store struct {
	mu            sync.RWMutex
	logs          map[string]models.DrivingLog
	schedules     map[uint]models.SubmissionSchedule
	actions       map[string]models.AdminAction
	notifications map[uint]models.Notification
	audits        []models.AuditLog
	nextID        uint
}

// New creates an empty store
func New() *Store {
	return &Store{
		logs:          make(map[string]models.DrivingLog),
		schedules:     make(map[uint]models.SubmissionSchedule),
		actions:       make(map[string]models.AdminAction),
		notifications: make(map[uint]models.Notification),
	}
}

// Repositories exposes the store through the repository interfaces
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Log:          &logRepo{s},
		Schedule:     &scheduleRepo{s},
		Action:       &actionRepo{s},
		Notification: &notificationRepo{s},
		Audit:        &auditRepo{s},
	}
}

func (s *Store) seq() uint {
	s.nextID++
	return s.nextID
}

func paginate[T any](items []T, q *repository.ListQuery) []T {
	if q == nil || q.PerPage <= 0 {
		return items
	}
	start := q.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + q.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func filterOf(q *repository.ListQuery, key string) string {
	if q == nil || q.Filters == nil {
		return ""
	}
	return q.Filters[key]
}

// Logs

type logRepo struct{ s *Store }

func (r *logRepo) FindByID(ctx context.Context, id string) (*models.DrivingLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.logs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &l, nil
}

func (r *logRepo) Create(ctx context.Context, log *models.DrivingLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	now := time.Now()
	log.CreatedAt, log.UpdatedAt = now, now
	r.s.logs[log.ID] = *log
	return nil
}

func (r *logRepo) UpdateReview(ctx context.Context, log *models.DrivingLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.logs[log.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Status = log.Status
	stored.ReviewerID = log.ReviewerID
	stored.ReviewedAt = log.ReviewedAt
	stored.ReviewNotes = log.ReviewNotes
	stored.UpdatedAt = time.Now()
	log.UpdatedAt = stored.UpdatedAt
	r.s.logs[log.ID] = stored
	return nil
}

func (r *logRepo) SetAction(ctx context.Context, id, actionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.logs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.ActionTaken = true
	stored.ActionID = &actionID
	stored.UpdatedAt = time.Now()
	r.s.logs[id] = stored
	return nil
}

func (r *logRepo) selectLogs(keep func(l *models.DrivingLog) bool, newestFirst bool) []models.DrivingLog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.DrivingLog, 0)
	for _, l := range r.s.logs {
		if keep(&l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

func (r *logRepo) FindBySubject(ctx context.Context, subjectID uint) ([]models.DrivingLog, error) {
	return r.selectLogs(func(l *models.DrivingLog) bool { return l.SubjectID == subjectID }, true), nil
}

func (r *logRepo) FindByDevice(ctx context.Context, deviceID uint) ([]models.DrivingLog, error) {
	return r.selectLogs(func(l *models.DrivingLog) bool { return l.DeviceID == deviceID }, true), nil
}

func (r *logRepo) FindLatestByDevice(ctx context.Context, deviceID uint) (*models.DrivingLog, error) {
	logs := r.selectLogs(func(l *models.DrivingLog) bool { return l.DeviceID == deviceID }, true)
	if len(logs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &logs[0], nil
}

func (r *logRepo) CountByDevice(ctx context.Context, deviceID uint) (int64, error) {
	logs := r.selectLogs(func(l *models.DrivingLog) bool { return l.DeviceID == deviceID }, true)
	return int64(len(logs)), nil
}

func (r *logRepo) CountBySubject(ctx context.Context, subjectID uint) (int64, int64, error) {
	var flagged int64
	logs := r.selectLogs(func(l *models.DrivingLog) bool { return l.SubjectID == subjectID }, true)
	for _, l := range logs {
		if l.AnomalyType != models.AnomalyNormal {
			flagged++
		}
	}
	return int64(len(logs)), flagged, nil
}

func (r *logRepo) FindFlagged(ctx context.Context) ([]models.DrivingLog, error) {
	return r.selectLogs(func(l *models.DrivingLog) bool { return l.AnomalyType != models.AnomalyNormal }, true), nil
}

func (r *logRepo) FindPendingReview(ctx context.Context) ([]models.DrivingLog, error) {
	return r.selectLogs(func(l *models.DrivingLog) bool {
		return l.Status == models.LogStatusFlagged || l.Status == models.LogStatusUnderReview
	}, false), nil
}

func (r *logRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.DrivingLog, int64, error) {
	status := filterOf(query, "status")
	anomaly := filterOf(query, "anomaly_type")
	risk := filterOf(query, "risk_level")
	subject := filterOf(query, "subject_id")
	device := filterOf(query, "device_id")

	logs := r.selectLogs(func(l *models.DrivingLog) bool {
		return (status == "" || string(l.Status) == status) &&
			(anomaly == "" || string(l.AnomalyType) == anomaly) &&
			(risk == "" || string(l.RiskLevel) == risk) &&
			(subject == "" || strconv.FormatUint(uint64(l.SubjectID), 10) == subject) &&
			(device == "" || strconv.FormatUint(uint64(l.DeviceID), 10) == device)
	}, true)
	return paginate(logs, query), int64(len(logs)), nil
}

// Schedules

type scheduleRepo struct{ s *Store }

func (r *scheduleRepo) FindBySubject(ctx context.Context, subjectID uint) (*models.SubmissionSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sch, ok := r.s.schedules[subjectID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sch, nil
}

func (r *scheduleRepo) Create(ctx context.Context, schedule *models.SubmissionSchedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.schedules[schedule.SubjectID]; exists {
		return gorm.ErrDuplicatedKey
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now()
	schedule.CreatedAt, schedule.UpdatedAt = now, now
	r.s.schedules[schedule.SubjectID] = *schedule
	return nil
}

func (r *scheduleRepo) Update(ctx context.Context, schedule *models.SubmissionSchedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[schedule.SubjectID]; !ok {
		return gorm.ErrRecordNotFound
	}
	schedule.UpdatedAt = time.Now()
	r.s.schedules[schedule.SubjectID] = *schedule
	return nil
}

func (r *scheduleRepo) DeleteBySubject(ctx context.Context, subjectID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[subjectID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.schedules, subjectID)
	return nil
}

func (r *scheduleRepo) selectSchedules(keep func(s *models.SubmissionSchedule) bool) []models.SubmissionSchedule {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.SubmissionSchedule, 0)
	for _, sch := range r.s.schedules {
		if keep(&sch) {
			out = append(out, sch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDueDate.Equal(out[j].NextDueDate) {
			return out[i].NextDueDate.Before(out[j].NextDueDate)
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out
}

func (r *scheduleRepo) FindAll(ctx context.Context) ([]models.SubmissionSchedule, error) {
	return r.selectSchedules(func(*models.SubmissionSchedule) bool { return true }), nil
}

func (r *scheduleRepo) FindOverdue(ctx context.Context, today time.Time) ([]models.SubmissionSchedule, error) {
	return r.selectSchedules(func(s *models.SubmissionSchedule) bool { return s.IsOverdue(today) }), nil
}

func (r *scheduleRepo) FindByMissedAtLeast(ctx context.Context, n int) ([]models.SubmissionSchedule, error) {
	out := r.selectSchedules(func(s *models.SubmissionSchedule) bool { return s.MissedSubmissions >= n })
	sort.SliceStable(out, func(i, j int) bool { return out[i].MissedSubmissions > out[j].MissedSubmissions })
	return out, nil
}

func (r *scheduleRepo) FindDueBetween(ctx context.Context, from, to time.Time) ([]models.SubmissionSchedule, error) {
	from, to = models.DateOf(from), models.DateOf(to)
	return r.selectSchedules(func(s *models.SubmissionSchedule) bool {
		due := models.DateOf(s.NextDueDate)
		return !due.Before(from) && !due.After(to)
	}), nil
}

// Actions

type actionRepo struct{ s *Store }

func (r *actionRepo) FindByID(ctx context.Context, id string) (*models.AdminAction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.actions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r *actionRepo) Create(ctx context.Context, action *models.AdminAction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	action.UpdatedAt = time.Now()
	r.s.actions[action.ID] = *action
	return nil
}

func (r *actionRepo) Update(ctx context.Context, action *models.AdminAction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.actions[action.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := *action
	updated.IsRead = stored.IsRead
	updated.ReadTime = stored.ReadTime
	updated.UpdatedAt = time.Now()
	r.s.actions[action.ID] = updated
	return nil
}

func (r *actionRepo) MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.actions[id]
	if !ok {
		return false, nil
	}
	if !stored.MarkRead(readAt) {
		return false, nil
	}
	stored.UpdatedAt = time.Now()
	r.s.actions[id] = stored
	return true, nil
}

func (r *actionRepo) selectActions(keep func(a *models.AdminAction) bool) []models.AdminAction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.AdminAction, 0)
	for _, a := range r.s.actions {
		if keep(&a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime.After(out[j].CreatedTime) })
	return out
}

func (r *actionRepo) FindBySubject(ctx context.Context, subjectID uint) ([]models.AdminAction, error) {
	out := r.selectActions(func(a *models.AdminAction) bool { return a.SubjectID == subjectID })
	sort.SliceStable(out, func(i, j int) bool { return !out[i].IsRead && out[j].IsRead })
	return out, nil
}

func (r *actionRepo) FindByLog(ctx context.Context, logID string) ([]models.AdminAction, error) {
	return r.selectActions(func(a *models.AdminAction) bool { return a.LogID != nil && *a.LogID == logID }), nil
}

func (r *actionRepo) FindByAdmin(ctx context.Context, adminID uint) ([]models.AdminAction, error) {
	return r.selectActions(func(a *models.AdminAction) bool { return a.AdminID == adminID }), nil
}

func (r *actionRepo) FindUnread(ctx context.Context) ([]models.AdminAction, error) {
	return r.selectActions(func(a *models.AdminAction) bool { return !a.IsRead }), nil
}

func (r *actionRepo) FindByStatus(ctx context.Context, status models.ActionStatus) ([]models.AdminAction, error) {
	out := r.selectActions(func(a *models.AdminAction) bool { return a.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime.Before(out[j].CreatedTime) })
	return out, nil
}

// Notifications

type notificationRepo struct{ s *Store }

func (r *notificationRepo) FindByID(ctx context.Context, id uint) (*models.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &n, nil
}

func (r *notificationRepo) FindBySubject(ctx context.Context, subjectID uint, query *repository.ListQuery) ([]models.Notification, int64, error) {
	status := filterOf(query, "status")
	r.s.mu.RLock()
	out := make([]models.Notification, 0)
	for _, n := range r.s.notifications {
		if n.SubjectID != subjectID {
			continue
		}
		if (status == "unread" && n.IsRead()) || (status == "read" && !n.IsRead()) {
			continue
		}
		out = append(out, n)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, query), int64(len(out)), nil
}

func (r *notificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	notification.ID = r.s.seq()
	now := time.Now()
	notification.CreatedAt, notification.UpdatedAt = now, now
	r.s.notifications[notification.ID] = *notification
	return nil
}

func (r *notificationRepo) Update(ctx context.Context, notification *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[notification.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	notification.UpdatedAt = time.Now()
	r.s.notifications[notification.ID] = *notification
	return nil
}

func (r *notificationRepo) MarkAllAsRead(ctx context.Context, subjectID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, n := range r.s.notifications {
		if n.SubjectID == subjectID && !n.IsRead() {
			n.MarkAsRead()
			r.s.notifications[id] = n
		}
	}
	return nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, subjectID uint) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var count int64
	for _, n := range r.s.notifications {
		if n.SubjectID == subjectID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

// Audit

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = r.s.seq()
	entry.CreatedAt = time.Now()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r *auditRepo) FindByEntity(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.AuditLog, 0)
	for _, e := range r.s.audits {
		if e.Entity == entity && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *auditRepo) List(ctx context.Context, limit, offset int) ([]models.AuditLog, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total := len(r.s.audits)
	out := make([]models.AuditLog, 0, total)
	for i := total - 1; i >= 0; i-- {
		out = append(out, r.s.audits[i])
	}
	if offset >= len(out) {
		return []models.AuditLog{}, int64(total), nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, int64(total), nil
}
