package db

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taller/internal/config"
	"taller/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "taller.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureDefaults(context.Background()))
	return db
}

type fixture struct {
	client  model.Client
	vehicle model.Vehicle
	service model.Service
}

func seedFixture(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()

	f := fixture{
		client:  model.Client{Name: "Ana López", Phone: "+52 55 1234 5678"},
		service: model.Service{Name: "Cambio de aceite", EstimatedDurationMinutes: 30, Price: 450, IsActive: true},
	}
	require.NoError(t, db.CreateClient(ctx, &f.client))
	f.vehicle = model.Vehicle{ClientID: f.client.ID, Make: "Nissan", Model: "Versa", Year: 2019, Plate: "ABC-123"}
	require.NoError(t, db.CreateVehicle(ctx, &f.vehicle))
	require.NoError(t, db.CreateService(ctx, &f.service))
	return f
}

func (f fixture) appointment(id string, at time.Time) *model.Appointment {
	return &model.Appointment{
		ID:              id,
		ClientID:        f.client.ID,
		VehicleID:       f.vehicle.ID,
		ServiceID:       f.service.ID,
		DurationMinutes: f.service.EstimatedDurationMinutes,
		DateTime:        at,
	}
}

func TestEnsureDefaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg, err := db.GetWorkshopConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TurnDurationMinutes)
	assert.Equal(t, "default", cfg.WorkshopID)

	hours, err := db.ListOperatingHours(ctx)
	require.NoError(t, err)
	require.Len(t, hours, 7)
	for _, h := range hours[:6] {
		assert.True(t, h.IsWorkingDay, "weekday %d", h.Weekday)
		assert.Equal(t, "09:00", h.OpenTime)
		assert.Equal(t, "18:00", h.CloseTime)
		assert.Equal(t, 3, h.MaxSimultaneousServices)
	}
	assert.False(t, hours[6].IsWorkingDay)

	// seeding twice keeps user edits
	require.NoError(t, db.SetTurnDuration(ctx, 45))
	require.NoError(t, db.EnsureDefaults(ctx))
	cfg, err = db.GetWorkshopConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.TurnDurationMinutes)
}

func TestSetTurnDuration_RejectsOutOfRange(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.SetTurnDuration(context.Background(), 10))
	assert.Error(t, db.SetTurnDuration(context.Background(), 17))
}

func TestUpsertOperatingHours(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	h := model.OperatingHours{Weekday: 6, IsWorkingDay: true, OpenTime: "10:00", CloseTime: "14:00", MaxSimultaneousServices: 1}
	require.NoError(t, db.UpsertOperatingHours(ctx, &h))

	hours, err := db.ListOperatingHours(ctx)
	require.NoError(t, err)
	require.Len(t, hours, 7)
	assert.Equal(t, "10:00", hours[5].OpenTime)
	assert.Equal(t, "14:00", hours[5].CloseTime)
	assert.Equal(t, 1, hours[5].MaxSimultaneousServices)
}

func TestBlockedDates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	full := model.BlockedDate{Date: "2026-03-10", Reason: "Inventario", IsFullDay: true, StartTime: "ignored"}
	require.NoError(t, db.CreateBlockedDate(ctx, &full))
	assert.NotZero(t, full.ID)

	partial := model.BlockedDate{Date: "2026-03-12", Reason: "Capacitación", StartTime: "14:00", EndTime: "16:00"}
	require.NoError(t, db.CreateBlockedDate(ctx, &partial))

	dup := model.BlockedDate{Date: "2026-03-10", IsFullDay: true}
	assert.ErrorIs(t, db.CreateBlockedDate(ctx, &dup), model.ErrAlreadyExists)

	all, err := db.ListBlockedDates(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Empty(t, all[0].StartTime)
	assert.Equal(t, "14:00", all[1].StartTime)
	assert.Equal(t, "16:00", all[1].EndTime)
	assert.False(t, all[1].IsFullDay)

	ranged, err := db.ListBlockedDates(ctx, "2026-03-11", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "2026-03-12", ranged[0].Date)

	require.NoError(t, db.DeleteBlockedDate(ctx, "2026-03-10"))
	assert.ErrorIs(t, db.DeleteBlockedDate(ctx, "2026-03-10"), model.ErrNotFound)
}

func TestCatalog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)

	dup := model.Service{Name: f.service.Name, EstimatedDurationMinutes: 60, IsActive: true}
	assert.ErrorIs(t, db.CreateService(ctx, &dup), model.ErrAlreadyExists)

	inactive := model.Service{Name: "Lavado", EstimatedDurationMinutes: 45, IsActive: false}
	require.NoError(t, db.CreateService(ctx, &inactive))

	active, err := db.ListServices(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, f.service.Name, active[0].Name)

	all, err := db.ListServices(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = db.GetService(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := db.GetClient(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana López", got.Name)

	vehicles, err := db.ListVehiclesByClient(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, 2019, vehicles[0].Year)

	orphan := model.Vehicle{ClientID: 999, Make: "VW", Model: "Jetta", Plate: "XYZ"}
	assert.ErrorIs(t, db.CreateVehicle(ctx, &orphan), model.ErrNotFound)
}

func TestBookAppointment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	a := f.appointment("a-1", at)
	var seen []model.Appointment
	require.NoError(t, db.BookAppointment(ctx, a, func(snap model.DaySnapshot) error {
		seen = snap.Active
		return nil
	}))
	assert.Empty(t, seen)
	assert.Equal(t, model.StatusPending, a.Status)

	b := f.appointment("a-2", at.Add(30*time.Minute))
	require.NoError(t, db.BookAppointment(ctx, b, func(snap model.DaySnapshot) error {
		seen = snap.Active
		return nil
	}))
	require.Len(t, seen, 1)
	assert.Equal(t, "a-1", seen[0].ID)
	assert.Equal(t, f.service.Name, seen[0].ServiceName)
	assert.True(t, seen[0].DateTime.Equal(at))

	vetoed := f.appointment("a-3", at)
	err := db.BookAppointment(ctx, vetoed, func(model.DaySnapshot) error { return model.ErrSlotTaken })
	assert.ErrorIs(t, err, model.ErrSlotTaken)
	_, err = db.GetAppointment(ctx, "a-3")
	assert.ErrorIs(t, err, model.ErrNotFound)

	dup := f.appointment("a-1", at.Add(time.Hour))
	assert.ErrorIs(t, db.BookAppointment(ctx, dup, nil), model.ErrAlreadyExists)

	bad := f.appointment("a-4", at)
	bad.ServiceID = 999
	assert.ErrorIs(t, db.BookAppointment(ctx, bad, nil), model.ErrNotFound)
}

func TestBookAppointment_ReadsDayInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.SetTurnDuration(ctx, 45))
	require.NoError(t, db.CreateBlockedDate(ctx, &model.BlockedDate{Date: "2026-03-02", Reason: "Junta", StartTime: "12:00", EndTime: "13:00"}))
	require.NoError(t, db.CreateBlockedDate(ctx, &model.BlockedDate{Date: "2026-03-03", Reason: "Feriado", IsFullDay: true}))

	var snap model.DaySnapshot
	require.NoError(t, db.BookAppointment(ctx, f.appointment("a-1", at), func(s model.DaySnapshot) error {
		snap = s
		return nil
	}))

	assert.Equal(t, 45, snap.TurnMinutes)
	assert.Len(t, snap.Hours, 7)
	require.Len(t, snap.Blocked, 1)
	assert.Equal(t, "Junta", snap.Blocked[0].Reason)
	assert.Empty(t, snap.Active)
}

func TestBookAppointment_SeesOnlyActiveSameDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.BookAppointment(ctx, f.appointment("mon", monday), nil))
	require.NoError(t, db.BookAppointment(ctx, f.appointment("tue", monday.AddDate(0, 0, 1)), nil))
	require.NoError(t, db.BookAppointment(ctx, f.appointment("gone", monday.Add(time.Hour)), nil))
	require.NoError(t, db.UpdateAppointmentStatus(ctx, "gone", model.StatusPending, model.StatusCancelled))

	var seen []model.Appointment
	require.NoError(t, db.BookAppointment(ctx, f.appointment("next", monday.Add(2*time.Hour)), func(snap model.DaySnapshot) error {
		seen = snap.Active
		return nil
	}))
	require.Len(t, seen, 1)
	assert.Equal(t, "mon", seen[0].ID)
}

// Concurrent bookings that each leave room for exactly one more appointment
// must not both succeed.
func TestBookAppointment_SerializesCheckAndInsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := f.appointment("race-"+string(rune('a'+i)), at)
			errs[i] = db.BookAppointment(ctx, a, func(snap model.DaySnapshot) error {
				if len(snap.Active) >= 1 {
					return model.ErrSlotTaken
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, taken)
}

func TestListAppointments_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, db.BookAppointment(ctx, f.appointment(id, base.AddDate(0, 0, i)), nil))
	}
	require.NoError(t, db.UpdateAppointmentStatus(ctx, "d2", model.StatusPending, model.StatusInProgress))

	all, err := db.ListAppointments(ctx, model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ranged, err := db.ListAppointments(ctx, model.AppointmentFilter{From: "2026-03-03", To: "2026-03-04"})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "d2", ranged[0].ID)

	inProgress, err := db.ListAppointments(ctx, model.AppointmentFilter{Status: model.StatusInProgress})
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, "d2", inProgress[0].ID)

	byClient, err := db.ListAppointments(ctx, model.AppointmentFilter{ClientID: f.client.ID + 1})
	require.NoError(t, err)
	assert.Empty(t, byClient)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db)
	require.NoError(t, db.BookAppointment(ctx, f.appointment("s-1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)), nil))

	require.NoError(t, db.UpdateAppointmentStatus(ctx, "s-1", model.StatusPending, model.StatusInProgress))
	assert.ErrorIs(t, db.UpdateAppointmentStatus(ctx, "s-1", model.StatusPending, model.StatusCancelled), model.ErrConcurrentModification)
	assert.ErrorIs(t, db.UpdateAppointmentStatus(ctx, "missing", model.StatusPending, model.StatusCancelled), model.ErrNotFound)

	got, err := db.GetAppointment(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestSyncWorkshopFromConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := &config.WorkshopConfig{
		TurnDurationMinutes: 20,
		Defaults:            config.DayHoursConfig{Open: "08:00", Close: "17:00", MaxSimultaneous: 4},
		Weekly: map[int]config.DayHoursConfig{
			6: {Closed: true},
			7: {Closed: true},
		},
		Holidays: []config.HolidayConfig{
			{Date: "2026-03-16", Name: "Natalicio de Benito Juárez"}, // Monday
			{Date: "2026-03-15", Name: "Domingo"},                    // Sunday, closed anyway
		},
		Services: []config.ServiceConfig{
			{Name: "Afinación", DurationMinutes: 90, Price: 1800},
			{Name: "Lavado", DurationMinutes: 30, Inactive: true},
		},
	}

	require.NoError(t, db.SyncWorkshopFromConfig(ctx, cfg))
	// applying twice is harmless
	require.NoError(t, db.SyncWorkshopFromConfig(ctx, cfg))

	wc, err := db.GetWorkshopConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, wc.TurnDurationMinutes)

	hours, err := db.ListOperatingHours(ctx)
	require.NoError(t, err)
	require.Len(t, hours, 7)
	assert.Equal(t, "08:00", hours[0].OpenTime)
	assert.Equal(t, 4, hours[0].MaxSimultaneousServices)
	assert.False(t, hours[5].IsWorkingDay)

	blocked, err := db.ListBlockedDates(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "2026-03-16", blocked[0].Date)
	assert.True(t, blocked[0].IsFullDay)

	services, err := db.ListServices(ctx, false)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "Afinación", services[0].Name)
	assert.Equal(t, 90, services[0].EstimatedDurationMinutes)
	assert.False(t, services[1].IsActive)

	assert.Error(t, db.SyncWorkshopFromConfig(ctx, nil))
}

func TestSnapshotter(t *testing.T) {
	db := newTestDB(t)
	seedFixture(t, db)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")

	s := NewSnapshotter(db, BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	path, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "taller_20260310T120000.db"), path)

	restored, err := NewDB(path, time.UTC)
	require.NoError(t, err)
	defer restored.Close()
	clients, err := restored.ListClients(context.Background())
	require.NoError(t, err)
	assert.Len(t, clients, 1)

	old := filepath.Join(dir, "taller_20260201T000000.db")
	recent := filepath.Join(dir, "taller_20260308T000000.db")
	foreign := filepath.Join(dir, "notes.txt")
	for _, f := range []string{old, recent, foreign} {
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	}

	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, recent)
	assert.FileExists(t, foreign)
	assert.FileExists(t, path)
}

func TestSnapshotter_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	only := filepath.Join(dir, "taller_20200101T000000.db")
	require.NoError(t, os.WriteFile(only, []byte("x"), 0o644))

	s := NewSnapshotter(nil, BackupConfig{StoragePath: dir, RetentionDays: 1}, nil)
	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.FileExists(t, only)
}
