package leaderboard

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MemberDelimiter separates the player name from the submission timestamp
// in sorted-set members.
const MemberDelimiter = "::"

type ScoreEntry struct {
	Name string  `json:"name"`
	Time float64 `json:"time"`
}

type Leaderboard struct {
	Entries  []ScoreEntry `json:"leaderboard"`
	BestTime *float64     `json:"bestTime"`
}

type Submission struct {
	BestTime    *float64     `json:"bestTime"`
	IsNewBest   bool         `json:"isNewBest"`
	Leaderboard []ScoreEntry `json:"leaderboard"`
}

// SubmitRequest is the POST body. Name and Time are coerced from loosely
// typed JSON; fields that cannot be coerced are left zero and flagged.
type SubmitRequest struct {
	Name      string
	Time      float64
	TimeValid bool
}

// MemberKey builds the sorted-set member for a run submitted at unixMillis.
func MemberKey(name string, unixMillis int64) string {
	return name + MemberDelimiter + strconv.FormatInt(unixMillis, 10)
}

// NameFromMember returns everything before the first delimiter.
func NameFromMember(member string) string {
	name, _, _ := strings.Cut(member, MemberDelimiter)
	return name
}

func (r *SubmitRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name json.RawMessage `json:"name"`
		Time json.RawMessage `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Name = coerceName(raw.Name)
	r.Time, r.TimeValid = coerceTime(raw.Time)
	return nil
}

func coerceName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// A zero name counts as missing, like an empty string.
	var n json.Number
	if err := decodeNumber(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil && f == 0 {
			return ""
		}
		return n.String()
	}
	return ""
}

func coerceTime(raw json.RawMessage) (float64, bool) {
	var text string
	var n json.Number
	if err := decodeNumber(raw, &n); err == nil {
		text = n.String()
	} else if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func decodeNumber(raw json.RawMessage, n *json.Number) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	num, ok := v.(json.Number)
	if !ok {
		return strconv.ErrSyntax
	}
	*n = num
	return nil
}
