// Package report renders workshop occupancy as Excel workbooks.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"taller/internal/model"
	"taller/internal/schedule"
)

// MonthLayout is the month format accepted by ParseMonth.
const MonthLayout = "2006-01"

const (
	sheetDays         = "Ocupación"
	sheetAppointments = "Turnos"
)

// Source is satisfied by *booking.Service.
type Source interface {
	Calendar(ctx context.Context, from, to time.Time) ([]schedule.DayAvailability, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	Location() *time.Location
}

type Builder struct {
	src    Source
	logger zerolog.Logger
}

func NewBuilder(src Source, logger *zerolog.Logger) *Builder {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "report").Logger()
	}
	return &Builder{src: src, logger: l}
}

// ParseMonth parses a yyyy-MM month and returns its first day in loc.
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	m, err := time.ParseInLocation(MonthLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return m, nil
}

// FileName is the download name of the workbook for month.
func FileName(month time.Time) string {
	return fmt.Sprintf("ocupacion_%s.xlsx", month.Format(MonthLayout))
}

// Monthly writes a workbook with one row per day of month and one row per
// appointment, cancelled ones included.
func (b *Builder) Monthly(ctx context.Context, month time.Time, out io.Writer) error {
	loc := b.src.Location()
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	days, err := b.src.Calendar(ctx, first, last)
	if err != nil {
		return fmt.Errorf("load calendar: %w", err)
	}
	appts, err := b.src.ListAppointments(ctx, model.AppointmentFilter{
		From: schedule.DateKey(first),
		To:   schedule.DateKey(last),
	})
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}

	w := newSheetWriter()
	defer func() { _ = w.close() }()

	if err := writeDays(w, days, loc); err != nil {
		return err
	}
	if err := writeAppointments(w, appts, loc); err != nil {
		return err
	}
	if err := w.save(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	b.logger.Info().
		Str("month", first.Format(MonthLayout)).
		Int("days", len(days)).
		Int("appointments", len(appts)).
		Msg("occupancy report generated")
	return nil
}

func writeDays(w *sheetWriter, days []schedule.DayAvailability, loc *time.Location) error {
	if err := w.addSheet(sheetDays); err != nil {
		return err
	}
	if err := w.header("Fecha", "Día", "Estado", "Turnos libres", "Turnos totales", "Ocupados", "Ocupación %", "Motivo"); err != nil {
		return err
	}

	for _, d := range days {
		weekday := ""
		if t, err := schedule.ParseDate(d.Date, loc); err == nil {
			weekday = schedule.WeekdayName(schedule.ISOWeekday(t))
		}
		if err := w.write([]any{
			d.Date, weekday, string(d.Status),
			d.AvailableSlots, d.TotalSlots, d.OccupiedSlots, d.OccupancyPercentage, d.Reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeAppointments(w *sheetWriter, appts []model.Appointment, loc *time.Location) error {
	if err := w.addSheet(sheetAppointments); err != nil {
		return err
	}
	if err := w.header("Fecha", "Hora", "Fin", "Servicio", "Duración (min)", "Estado", "Cliente", "Vehículo", "ID", "Notas"); err != nil {
		return err
	}

	for i := range appts {
		a := &appts[i]
		start := a.DateTime.In(loc)
		if err := w.write([]any{
			schedule.DateKey(start), schedule.ClockOf(start).String(), schedule.ClockOf(a.End().In(loc)).String(),
			a.ServiceName, a.DurationMinutes, string(a.Status), a.ClientID, a.VehicleID, a.ID, a.Notes,
		}); err != nil {
			return err
		}
	}
	return nil
}
