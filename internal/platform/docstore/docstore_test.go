package docstore

import "testing"

func TestIndexesCoverEveryCollection(t *testing.T) {
	for _, name := range []string{AppointmentHistory, CallLogs, Callbacks} {
		if len(indexes[name]) == 0 {
			t.Errorf("expected indexes for %s", name)
		}
	}
}
