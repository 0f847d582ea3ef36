package assistant

import (
	"encoding/json"
	"errors"
	"strings"
)

// AppointmentIntent is the structured booking request the assistant is
// prompted to emit as a JSON object inside its reply.
type AppointmentIntent struct {
	Doctor string `json:"doctor"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

var ErrNoIntent = errors.New("no appointment intent in reply")

// ParseAppointmentIntent decodes the first JSON object found in text. Code
// fences and surrounding prose are ignored.
func ParseAppointmentIntent(text string) (AppointmentIntent, error) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var intent AppointmentIntent
		if err := dec.Decode(&intent); err == nil {
			if intent.Doctor == "" && intent.Date == "" && intent.Time == "" {
				return AppointmentIntent{}, ErrNoIntent
			}
			return intent, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return AppointmentIntent{}, ErrNoIntent
}
