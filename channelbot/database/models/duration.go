package models

import (
	"encoding/json"
	"time"
)

// Seconds is a time.Duration that serializes as a whole number of seconds,
// which is how the persisted JSON document stores every span.
type Seconds time.Duration

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(time.Duration(s) / time.Second))
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return err
	}
	*s = Seconds(time.Duration(secs) * time.Second)
	return nil
}

func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}
