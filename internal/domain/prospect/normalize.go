package prospect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bounds of the indexed key families observed in the upstream payloads.
const (
	MaxPositions = 36
	MaxSchools   = 20
	MaxSkills    = 20
)

const (
	FieldPositions = "positions"
	FieldSchools   = "schools"
	FieldSkills    = "skills"
)

var ErrMissingID = errors.New("record has no id")

var positionFields = []string{"Company", "Location", "Title", "Description", "From", "To"}
var schoolFields = []string{"Name", "Degree", "Field", "From", "To"}

// FlatRecord is the upstream wire shape: scalar values keyed by name, with
// repeated sub-entities spread over indexed keys such as "Position-3-Title".
type FlatRecord map[string]any

// Normalize folds the indexed Position/School/Skill key families into
// structured "positions", "schools" and "skills" entries and strips every
// indexed key inside the known bounds. An index is kept only when its anchor
// (Company, Name, or the skill itself) is non-empty; gaps are skipped. A
// family with no kept index leaves any existing structured value untouched,
// so normalizing an already-normalized record changes nothing. The input map
// is not modified.
func Normalize(flat FlatRecord) FlatRecord {
	out := make(FlatRecord, len(flat))
	for k, v := range flat {
		out[k] = v
	}

	var positions []Position
	for i := 0; i < MaxPositions; i++ {
		prefix := fmt.Sprintf("Position-%d-", i)
		if company := strings.TrimSpace(scalarString(out[prefix+"Company"])); company != "" {
			positions = append(positions, Position{
				Company:     company,
				Location:    scalarString(out[prefix+"Location"]),
				Title:       scalarString(out[prefix+"Title"]),
				Description: scalarString(out[prefix+"Description"]),
				From:        scalarString(out[prefix+"From"]),
				To:          scalarString(out[prefix+"To"]),
			})
		}
		for _, f := range positionFields {
			delete(out, prefix+f)
		}
	}
	if len(positions) > 0 {
		out[FieldPositions] = positions
	}

	var schools []School
	for i := 0; i < MaxSchools; i++ {
		prefix := fmt.Sprintf("School-%d-", i)
		if name := strings.TrimSpace(scalarString(out[prefix+"Name"])); name != "" {
			schools = append(schools, School{
				Name:   name,
				Degree: scalarString(out[prefix+"Degree"]),
				Field:  scalarString(out[prefix+"Field"]),
				From:   scalarString(out[prefix+"From"]),
				To:     scalarString(out[prefix+"To"]),
			})
		}
		for _, f := range schoolFields {
			delete(out, prefix+f)
		}
	}
	if len(schools) > 0 {
		out[FieldSchools] = schools
	}

	var skills []string
	for i := 0; i < MaxSkills; i++ {
		key := fmt.Sprintf("Skill-%d", i)
		if skill := strings.TrimSpace(scalarString(out[key])); skill != "" {
			skills = append(skills, skill)
		}
		delete(out, key)
	}
	if len(skills) > 0 {
		out[FieldSkills] = skills
	}

	return out
}

// FromFlat normalizes a flat record and maps it onto the typed Record. Keys
// outside the known schema are kept verbatim in Extra when they are scalars.
func FromFlat(kind Kind, flat FlatRecord) (*Record, error) {
	n := Normalize(flat)

	id := strings.TrimSpace(scalarString(n["id"]))
	if id == "" {
		return nil, ErrMissingID
	}

	rec := &Record{
		ID:               id,
		Kind:             kind,
		CapturedAt:       parseCaptureTime(n[kind.CaptureField()]),
		FirstName:        scalarString(n["First Name"]),
		LastName:         scalarString(n["Last Name"]),
		ProfileURL:       scalarString(n["Profile"]),
		PublicProfileURL: scalarString(n["PublicProfile"]),
		Title:            scalarString(n["Title"]),
		Company:          scalarString(n["Company"]),
		Industry:         scalarString(n["Industry"]),
		Location:         scalarString(n["Location"]),
		Thumbnail:        scalarString(n["Thumbnail"]),
	}

	if v, ok := n[FieldPositions]; ok {
		if err := decodeStructured(v, &rec.Positions); err != nil {
			return nil, fmt.Errorf("decode positions: %w", err)
		}
	}
	if v, ok := n[FieldSchools]; ok {
		if err := decodeStructured(v, &rec.Schools); err != nil {
			return nil, fmt.Errorf("decode schools: %w", err)
		}
	}
	if v, ok := n[FieldSkills]; ok {
		if err := decodeStructured(v, &rec.Skills); err != nil {
			return nil, fmt.Errorf("decode skills: %w", err)
		}
	}

	known := map[string]struct{}{
		"id": {}, kind.CaptureField(): {}, "First Name": {}, "Last Name": {},
		"Profile": {}, "PublicProfile": {}, "Title": {}, "Company": {},
		"Industry": {}, "Location": {}, "Thumbnail": {},
		FieldPositions: {}, FieldSchools: {}, FieldSkills: {},
	}
	for k, v := range n {
		if _, ok := known[k]; ok {
			continue
		}
		if !isScalar(v) {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		rec.Extra[k] = v
	}
	return rec, nil
}

func decodeStructured(v, out any) error {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

var captureLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseCaptureTime accepts ISO-like strings or epoch milliseconds. Anything
// else yields the zero time, which callers treat as "not supplied".
func parseCaptureTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case int64:
		return time.UnixMilli(t).UTC()
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range captureLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}
