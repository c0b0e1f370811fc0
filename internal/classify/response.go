package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

type modelAssignment struct {
	ID          json.Number `json:"id"`
	Category    string      `json:"category"`
	Subcategory string      `json:"subcategory"`
}

// decodeAssignments turns a raw model response into validated assignments. A
// response that is not a JSON array fails the batch with ErrBadResponse;
// individual entries are tolerated: missing or non-numeric ids and ids not in
// the submitted batch are skipped, and every category pair is normalized
// onto the taxonomy.
func decodeAssignments(raw string, batch []Summary, tax taxonomy.Set) (map[int64]ledger.Assignment, error) {
	clean := cleanModelJSON(raw)

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(clean), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	inBatch := make(map[int64]struct{}, len(batch))
	for _, s := range batch {
		inBatch[s.ID] = struct{}{}
	}

	out := make(map[int64]ledger.Assignment, len(entries))
	for _, entry := range entries {
		var a modelAssignment
		if err := json.Unmarshal(entry, &a); err != nil {
			continue
		}
		id, err := a.ID.Int64()
		if err != nil {
			continue
		}
		if _, ok := inBatch[id]; !ok {
			continue
		}
		category, subcategory := tax.Normalize(a.Category, a.Subcategory)
		out[id] = ledger.Assignment{Category: category, Subcategory: subcategory}
	}

	return out, nil
}

// cleanModelJSON strips markdown fences and surrounding junk the model
// sometimes emits despite the format instruction, keeping only the text from
// the first '[' to the last ']'.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
