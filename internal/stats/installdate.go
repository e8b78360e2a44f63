package stats

import (
	"context"
	"time"
)

const installDateKey = "appInstallDate"

// DateFormat is the layout for day-addressed members and markers.
const DateFormat = "2006-01-02"

// InstallDate returns the recorded install date, or ok=false when it was
// never set. It is written exactly once at install time; absence afterwards
// short-circuits any operation that scopes work to "months since install".
func (s *Store) InstallDate(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := s.GetValue(ctx, installDateKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	date, err := time.ParseInLocation(DateFormat, value, time.UTC)
	if err != nil {
		return time.Time{}, false, err
	}

	return date, true, nil
}

// RecordInstallDate stores the install date if one is not already present.
func (s *Store) RecordInstallDate(ctx context.Context, date time.Time) error {
	_, err := s.SetValueIfAbsent(ctx, installDateKey, date.UTC().Format(DateFormat), 0)

	return err
}
