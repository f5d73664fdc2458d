/*
Copyright 2025 Storesync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storesync

import (
	"encoding/json"
	"time"
)

const legacyDateLayout = "2006-01-02"

// LegacyDate is a calendar date on the legacy wire. The legacy system writes
// "0000-00-00" for an absent date, so absence round trips through Valid.
type LegacyDate struct {
	Time  time.Time
	Valid bool
}

func NewLegacyDate(t time.Time) LegacyDate {
	return LegacyDate{Time: t, Valid: true}
}

func (d LegacyDate) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return json.Marshal("0000-00-00")
	}
	return json.Marshal(d.Time.Format(legacyDateLayout))
}

func (d *LegacyDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" || s == "0000-00-00" {
		*d = LegacyDate{}
		return nil
	}
	t, err := time.Parse(legacyDateLayout, s)
	if err != nil {
		return err
	}
	*d = LegacyDate{Time: t, Valid: true}
	return nil
}

// LegacyTime is a time of day as seconds since midnight, the only clock
// resolution the legacy wire carries.
type LegacyTime int64

// Datetime combines a legacy date and seconds-since-midnight time into a
// single timestamp. Returns nil for the absent date.
func Datetime(date LegacyDate, secs LegacyTime) *time.Time {
	if !date.Valid {
		return nil
	}
	t := date.Time.Add(time.Duration(secs) * time.Second)
	return &t
}

// SplitDatetime splits a timestamp back into the wire's date and
// seconds-since-midnight pair.
func SplitDatetime(t *time.Time) (LegacyDate, LegacyTime) {
	if t == nil {
		return LegacyDate{}, 0
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return NewLegacyDate(midnight), LegacyTime(t.Sub(midnight) / time.Second)
}

const legacyDatetimeLayout = "2006-01-02T15:04:05"

// LegacyDatetime is a full timestamp on the wire. Only records authored by a
// newer site carry these, as om_* override fields. The empty string means
// absent.
type LegacyDatetime struct {
	Time  time.Time
	Valid bool
}

func NewLegacyDatetime(t *time.Time) LegacyDatetime {
	if t == nil {
		return LegacyDatetime{}
	}
	return LegacyDatetime{Time: *t, Valid: true}
}

// Ptr converts back to the domain's optional timestamp representation.
func (d LegacyDatetime) Ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func (d LegacyDatetime) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return json.Marshal("")
	}
	return json.Marshal(d.Time.Format(legacyDatetimeLayout))
}

func (d *LegacyDatetime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = LegacyDatetime{}
		return nil
	}
	t, err := time.Parse(legacyDatetimeLayout, s)
	if err != nil {
		return err
	}
	*d = LegacyDatetime{Time: t, Valid: true}
	return nil
}

// StrOrNil maps the wire's empty string to an absent value.
func StrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrFromPtr maps an absent value back to the wire's empty string.
func StrFromPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
