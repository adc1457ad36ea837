package attendance

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIdentityAcceptsQuotedRecord(t *testing.T) {
	var id Identity
	raw := `{"record":"42","id":"1712345678","lastnames":"Paredes","names":"Ana","mail":"ana@example.com","phone":"0999","user":"ana"}`
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if id.RecordID != 42 || id.NationalID != "1712345678" || id.FullName() != "Ana Paredes" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestEntryAcceptsNumericRecord(t *testing.T) {
	var entries []Entry
	raw := `[{"record":7,"date":"2026-10-15","time":"08:01:02","join_date":"2026-10-15 08:01:02"},{"record":null,"date":"2026-10-14"}]`
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 2 || entries[0].RecordID != 7 || entries[0].FullTimestamp != "2026-10-15 08:01:02" || entries[1].RecordID != 0 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestIdentityRejectsNonNumericRecord(t *testing.T) {
	var id Identity
	if err := json.Unmarshal([]byte(`{"record":"abc"}`), &id); err == nil {
		t.Fatalf("expected error for non-numeric record")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(&ConnectionError{Op: "authenticate", Status: 500}); got != "Connection error. Please try again." {
		t.Fatalf("unexpected connection message %q", got)
	}
	if got := Message(Invalid("enter username and password")); got != "enter username and password" {
		t.Fatalf("unexpected validation message %q", got)
	}
	wrapped := errors.Join(errors.New("load"), ErrNoSession)
	if got := Message(wrapped); got != "Please log in first." {
		t.Fatalf("unexpected session message %q", got)
	}
}
