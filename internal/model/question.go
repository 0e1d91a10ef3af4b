package model

import (
	"sort"
	"strings"
)

type QuestionType string

const (
	TypeMCQ  QuestionType = "MCQ"
	TypeMCMA QuestionType = "MCMA"
	TypeTFNG QuestionType = "TFNG"
	TypeYNNG QuestionType = "YNNG"
	TypeSA   QuestionType = "SA"
	TypeNC   QuestionType = "NC"
	TypeMH   QuestionType = "MH"
	TypeMI   QuestionType = "MI"
	TypeMF   QuestionType = "MF"
	TypeSUC  QuestionType = "SUC"
	TypeTC   QuestionType = "TC"
	TypeFCC  QuestionType = "FCC"
	TypeDL   QuestionType = "DL"
	TypeML   QuestionType = "ML"
	TypeSC   QuestionType = "SC"
	TypeFC   QuestionType = "FC"
)

var questionTypes = map[QuestionType]struct{}{
	TypeMCQ: {}, TypeMCMA: {}, TypeTFNG: {}, TypeYNNG: {}, TypeSA: {}, TypeNC: {},
	TypeMH: {}, TypeMI: {}, TypeMF: {}, TypeSUC: {}, TypeTC: {}, TypeFCC: {},
	TypeDL: {}, TypeML: {}, TypeSC: {}, TypeFC: {},
}

func (t QuestionType) Valid() bool {
	_, ok := questionTypes[t]
	return ok
}

// Immediate reports whether answers of this type are saved without debounce.
func (t QuestionType) Immediate() bool {
	switch t {
	case TypeMCQ, TypeMCMA, TypeTFNG, TypeYNNG:
		return true
	}
	return false
}

type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type Question struct {
	ID            int      `json:"id"`
	Order         int      `json:"order"`
	Text          string   `json:"text,omitempty"`
	Options       []Option `json:"options,omitempty"`
	MaxSelections *int     `json:"max_selections,omitempty"`
	UserAnswer    *string  `json:"user_answer,omitempty"`
}

type TestHead struct {
	ID           int          `json:"id"`
	Title        string       `json:"title,omitempty"`
	Instruction  string       `json:"instruction,omitempty"`
	QuestionType QuestionType `json:"question_type"`
	Options      []Option     `json:"options,omitempty"`
	Questions    []Question   `json:"questions"`
}

// IsAnswered treats empty and whitespace-only values as unanswered.
func IsAnswered(answer string) bool {
	return strings.TrimSpace(answer) != ""
}

// QuestionWeight is the single source of the weighting rule: an MCMA
// question counts as its max_selections (falling back to its option count),
// every other question counts as one.
func QuestionWeight(head TestHead, q Question) int {
	if head.QuestionType != TypeMCMA {
		return 1
	}
	if q.MaxSelections != nil && *q.MaxSelections > 0 {
		return *q.MaxSelections
	}
	if n := len(q.Options); n > 0 {
		return n
	}
	if n := len(head.Options); n > 0 {
		return n
	}
	return 1
}

type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

func (p Progress) add(o Progress) Progress {
	return Progress{Answered: p.Answered + o.Answered, Total: p.Total + o.Total}
}

func HeadProgress(head TestHead, answers map[int]string) Progress {
	var p Progress
	for _, q := range head.Questions {
		w := QuestionWeight(head, q)
		p.Total += w
		if IsAnswered(answers[q.ID]) {
			p.Answered += w
		}
	}
	return p
}

func HeadsProgress(heads []TestHead, answers map[int]string) Progress {
	var p Progress
	for _, h := range heads {
		p = p.add(HeadProgress(h, answers))
	}
	return p
}

func (p ListeningPart) Progress(answers map[int]string) Progress {
	return HeadsProgress(p.TestHeads, answers)
}

func (p ReadingPassage) Progress(answers map[int]string) Progress {
	return HeadsProgress(p.TestHeads, answers)
}

// Progress is the header-level counter; it sums the same per-head values the palette uses.
func (d *SectionData) Progress(answers map[int]string) Progress {
	return HeadsProgress(d.TestHeads(), answers)
}

// EncodeSelections sorts the selected option keys and concatenates them with no separator.
func EncodeSelections(keys []string) string {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, "")
}

// DecodeSelections splits an encoded multi-select answer; option keys are single characters.
func DecodeSelections(answer string) []string {
	var keys []string
	for _, r := range strings.TrimSpace(answer) {
		keys = append(keys, string(r))
	}
	return keys
}

// ToggleSelection adds or removes option from the encoded answer. Adding
// beyond max leaves the answer unchanged.
func ToggleSelection(answer, option string, max int) string {
	keys := DecodeSelections(answer)
	for i, k := range keys {
		if k == option {
			return EncodeSelections(append(keys[:i:i], keys[i+1:]...))
		}
	}
	if max > 0 && len(keys) >= max {
		return EncodeSelections(keys)
	}
	return EncodeSelections(append(keys, option))
}
