package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAppendBounded(t *testing.T) {
	t.Run("under capacity", func(t *testing.T) {
		var s []int
		for i := 1; i <= 5; i++ {
			s = AppendBounded(s, i, HistoryCapacity)
		}
		if len(s) != 5 {
			t.Fatalf("len = %d, want 5", len(s))
		}
		if s[0] != 1 || s[4] != 5 {
			t.Errorf("s = %v, want [1..5]", s)
		}
	})

	t.Run("21st append evicts exactly the oldest", func(t *testing.T) {
		var s []int
		for i := 1; i <= HistoryCapacity; i++ {
			s = AppendBounded(s, i, HistoryCapacity)
		}
		s = AppendBounded(s, 21, HistoryCapacity)

		if len(s) != HistoryCapacity {
			t.Fatalf("len = %d, want %d", len(s), HistoryCapacity)
		}
		if s[0] != 2 {
			t.Errorf("oldest = %d, want 2", s[0])
		}
		if s[len(s)-1] != 21 {
			t.Errorf("newest = %d, want 21", s[len(s)-1])
		}
	})

	t.Run("oversized input is trimmed", func(t *testing.T) {
		s := make([]int, 30)
		for i := range s {
			s[i] = i
		}
		got := AppendBounded(s, 30, 20)
		if len(got) != 20 || got[0] != 11 || got[19] != 30 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("does not alias input", func(t *testing.T) {
		s := make([]int, 2, 10)
		s[0], s[1] = 1, 2
		got := AppendBounded(s, 3, 5)
		got[0] = 99
		if s[0] != 1 {
			t.Errorf("input mutated: %v", s)
		}
	})

	t.Run("zero capacity", func(t *testing.T) {
		if got := AppendBounded([]int{1}, 2, 0); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}

func TestAccountRecordValid(t *testing.T) {
	tests := []struct {
		name string
		rec  AccountRecord
		want bool
	}{
		{"complete", AccountRecord{Credentials: Credentials{Username: "alice", Password: "pw"}}, true},
		{"missing password", AccountRecord{Credentials: Credentials{Username: "alice"}}, false},
		{"missing username", AccountRecord{Credentials: Credentials{Password: "pw"}}, false},
		{"empty", AccountRecord{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStepRow(t *testing.T) {
	at := time.Date(2025, 1, 2, 13, 4, 5, 0, time.UTC)
	e := Event{
		Name:       "worldBossBattleStep",
		CapturedAt: at,
		Payload: json.RawMessage(`{"damage":120,"currentEnemyHP":880,"enemyHPMax":1000,
			"isCrit":true,"isMiss":false,"conditionalEffects":[{"name":"burn"},{"name":"stun"}]}`),
	}

	row, ok := StepRow(e, "alice")
	if !ok {
		t.Fatal("StepRow returned ok = false")
	}
	if len(row) != 8 {
		t.Fatalf("len(row) = %d, want 8", len(row))
	}
	if row[0] != "13:04:05" {
		t.Errorf("time = %v, want 13:04:05", row[0])
	}
	if row[1] != "alice" {
		t.Errorf("username = %v, want alice", row[1])
	}
	effects, _ := row[2].([]string)
	if len(effects) != 2 || effects[0] != "burn" || effects[1] != "stun" {
		t.Errorf("effects = %v, want [burn stun]", row[2])
	}
	if row[3] != float64(120) || row[4] != float64(880) || row[5] != float64(1000) {
		t.Errorf("numbers = %v %v %v", row[3], row[4], row[5])
	}
	if row[6] != true || row[7] != false {
		t.Errorf("flags = %v %v", row[6], row[7])
	}

	if _, ok := StepRow(Event{Payload: json.RawMessage(`"nope"`)}, "alice"); ok {
		t.Error("expected ok = false for non-object payload")
	}
}

func TestLogEntryString(t *testing.T) {
	l := LogEntry{At: time.Date(2025, 1, 2, 9, 8, 7, 0, time.UTC), Message: "alice online"}
	if got := l.String(); got != "09:08:07 alice online" {
		t.Errorf("String() = %q", got)
	}

	untimed := LogEntry{Message: "1:05:03 PM alice online"}
	if got := untimed.String(); got != "1:05:03 PM alice online" {
		t.Errorf("String() without time = %q", got)
	}
}

func TestEventJSON(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		event  string
		legacy bool
	}{
		{
			name:   "envelope",
			stored: `{"event":"worldBossBattleStep","time":"2025-01-02T13:04:05Z","data":{"damage":1}}`,
			event:  "worldBossBattleStep",
		},
		{name: "bare step", stored: `{"damage":10,"time":"1:05:03 PM"}`, legacy: true},
		{name: "foreign time", stored: `{"event":"x","time":"1:05:03 PM"}`, legacy: true},
		{name: "scalar", stored: `42`, legacy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Event
			if err := json.Unmarshal([]byte(tt.stored), &e); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if e.Name != tt.event {
				t.Errorf("Name = %q, want %q", e.Name, tt.event)
			}
			if (len(e.Raw) > 0) != tt.legacy {
				t.Errorf("Raw = %s, legacy = %v", e.Raw, tt.legacy)
			}
			if !tt.legacy {
				return
			}
			out, err := json.Marshal(e)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(out) != tt.stored {
				t.Errorf("Marshal() = %s, want %s unchanged", out, tt.stored)
			}
		})
	}
}

func TestStepRow_StoredStep(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(`{"damage":10,"currentEnemyHP":90,"enemyHPMax":100,"time":"1:05:03 PM"}`), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	row, ok := StepRow(e, "bob")
	if !ok {
		t.Fatal("StepRow returned ok = false")
	}
	if row[0] != "1:05:03 PM" {
		t.Errorf("time = %v, want stored clock", row[0])
	}
	if row[3] != float64(10) {
		t.Errorf("damage = %v, want 10", row[3])
	}
}
