package bulk

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParseIDs keeps only positive decimal integers, without sign or spaces
// inside, and drops repeats. Order of first appearance is kept.
func ParseIDs(raw []string) []int {
	seen := make(map[int]bool, len(raw))
	ids := make([]int, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if !isDigits(s) {
			continue
		}
		id, err := strconv.Atoi(s)
		if err != nil || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IDList decodes a JSON array of lead ids given as numbers or strings,
// e.g. [1, "2", "3; DROP TABLE"], or repeated form and query values such
// as lead_ids=1&lead_ids=abc. Entries that are not positive integers are
// dropped rather than rejected.
type IDList []int

// UnmarshalParams binds every value of a repeated form or query field.
func (l *IDList) UnmarshalParams(params []string) error {
	*l = ParseIDs(params)
	return nil
}

// UnmarshalParam implements echo.BindUnmarshaler for a single value.
func (l *IDList) UnmarshalParam(param string) error {
	return l.UnmarshalParams([]string{param})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	raw := make([]string, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				continue
			}
			raw = append(raw, s)
			continue
		}
		raw = append(raw, string(item))
	}

	*l = ParseIDs(raw)
	return nil
}
