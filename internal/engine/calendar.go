package engine

import (
	"context"

	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/schema"
	"github.com/sadopc/tabula/internal/storage"
)

// Event is one dated row, as shown on the calendar.
type Event struct {
	ID                int64  `json:"id"`
	CollectionID      string `json:"collection_id"`
	CollectionName    string `json:"collection_name"`
	Title             any    `json:"title"`
	Date              string `json:"date"`
	RecurrenceRule    string `json:"recurrence_rule"`
	RecurrenceEndDate any    `json:"recurrence_end_date"`
	RecurrenceDays    any    `json:"recurrence_days"`
	EndDateTime       any    `json:"end_date_time"`
	IsAllDay          bool   `json:"is_all_day"`
}

// Calendar returns every row that has a value in its collection's first
// DateTime field. Collections without one are skipped, as are tables that
// cannot be read.
func (s *Service) Calendar(ctx context.Context) ([]Event, error) {
	colls, err := s.cat.List(ctx)
	if err != nil {
		return nil, err
	}
	events := []Event{}
	for _, coll := range colls {
		dateField, ok := coll.Schema.FirstOfType(schema.DateTime)
		if !ok {
			continue
		}
		titleKey := schema.ColID
		if f, ok := coll.Schema.TitleField(); ok {
			titleKey = f.Key
		}
		var found []storage.Row
		err := s.store.Do(ctx, func(conn *storage.Conn) error {
			var err error
			found, err = conn.SelectAll(ctx, coll.TableName)
			return err
		})
		if err != nil {
			s.log.Warnw("calendar skipped collection", "collection", coll.ID, "table", coll.TableName, "error", err)
			continue
		}
		for _, row := range found {
			date := formula.Format(formula.Normalize(row[dateField.Key]))
			if date == "" {
				continue
			}
			events = append(events, event(coll, row, titleKey, date))
		}
	}
	return events, nil
}

func event(coll schema.Collection, row storage.Row, titleKey, date string) Event {
	id, _ := row[schema.ColID].(int64)
	e := Event{
		ID:                id,
		CollectionID:      coll.ID,
		CollectionName:    coll.Name,
		Title:             formula.Normalize(row[titleKey]),
		Date:              date,
		RecurrenceRule:    "NONE",
		RecurrenceEndDate: formula.Normalize(row[schema.ColRecurrenceEndDate]),
		RecurrenceDays:    formula.Normalize(row[schema.ColRecurrenceDays]),
		EndDateTime:       formula.Normalize(row[schema.ColEndDateTime]),
	}
	if rule, ok := row[schema.ColRecurrenceRule].(string); ok && rule != "" {
		e.RecurrenceRule = rule
	}
	if n, ok := formula.Normalize(row[schema.ColIsAllDay]).(float64); ok {
		e.IsAllDay = n != 0
	}
	return e
}
