package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the profile record returned by the remote system on login.
type Identity struct {
	RecordID   int64  `json:"record"`
	NationalID string `json:"id"`
	LastNames  string `json:"lastnames"`
	FirstNames string `json:"names"`
	Email      string `json:"mail"`
	Phone      string `json:"phone"`
	LoginName  string `json:"user"`
}

// FullName joins first and last names for display.
func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstNames + " " + i.LastNames)
}

// IsZero reports whether the identity carries no record.
func (i Identity) IsZero() bool {
	return i.RecordID == 0 && i.NationalID == ""
}

// UnmarshalJSON accepts the record identifier as a number or a numeric string.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var wire struct {
		RecordID   flexInt `json:"record"`
		NationalID string  `json:"id"`
		LastNames  string  `json:"lastnames"`
		FirstNames string  `json:"names"`
		Email      string  `json:"mail"`
		Phone      string  `json:"phone"`
		LoginName  string  `json:"user"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*i = Identity{
		RecordID:   int64(wire.RecordID),
		NationalID: wire.NationalID,
		LastNames:  wire.LastNames,
		FirstNames: wire.FirstNames,
		Email:      wire.Email,
		Phone:      wire.Phone,
		LoginName:  wire.LoginName,
	}
	return nil
}

// Entry is one attendance record produced by the remote system.
type Entry struct {
	RecordID      int64  `json:"record"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	FullTimestamp string `json:"join_date"`
}

// UnmarshalJSON accepts the record identifier as a number or a numeric string.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var wire struct {
		RecordID      flexInt `json:"record"`
		Date          string  `json:"date"`
		Time          string  `json:"time"`
		FullTimestamp string  `json:"join_date"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Entry{RecordID: int64(wire.RecordID), Date: wire.Date, Time: wire.Time, FullTimestamp: wire.FullTimestamp}
	return nil
}

// flexInt decodes integers the remote sometimes sends quoted.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("record %q is not an integer: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		fv, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("record %s is not an integer: %w", n, err)
		}
		v = int64(fv)
	}
	*f = flexInt(v)
	return nil
}
