package model

import "errors"

const (
	SectionListening = "listening"
	SectionReading   = "reading"
	SectionWriting   = "writing"
	SectionSpeaking  = "speaking"
)

const (
	AttemptNotStarted = "not_started"
	AttemptInProgress = "in_progress"
	AttemptCompleted  = "completed"
)

var ErrAmbiguousSection = errors.New("section data must carry exactly one of parts, passages, tasks or topics")

type ExamAttempt struct {
	ID             int                 `json:"id"`
	UUID           string              `json:"uuid,omitempty"`
	CurrentSection string              `json:"current_section"`
	Status         string              `json:"status"`
	Scores         map[string]*float64 `json:"scores,omitempty"`
	StartedAt      *string             `json:"started_at,omitempty"`
	CompletedAt    *string             `json:"completed_at,omitempty"`
}

// SectionData is discriminated by which content slice is present.
type SectionData struct {
	Attempt         *ExamAttempt     `json:"attempt,omitempty"`
	TimeRemaining   *int             `json:"time_remaining,omitempty"`
	NextSectionName *string          `json:"next_section_name"`
	Parts           []ListeningPart  `json:"parts,omitempty"`
	Passages        []ReadingPassage `json:"passages,omitempty"`
	Tasks           []WritingTask    `json:"tasks,omitempty"`
	Topics          []SpeakingTopic  `json:"topics,omitempty"`
}

func (d *SectionData) Kind() (string, error) {
	kind := ""
	count := 0
	if d.Parts != nil {
		kind, count = SectionListening, count+1
	}
	if d.Passages != nil {
		kind, count = SectionReading, count+1
	}
	if d.Tasks != nil {
		kind, count = SectionWriting, count+1
	}
	if d.Topics != nil {
		kind, count = SectionSpeaking, count+1
	}
	if count != 1 {
		return "", ErrAmbiguousSection
	}
	return kind, nil
}

// HasNextSection reports false for the last section of the exam.
func (d *SectionData) HasNextSection() bool {
	return d.NextSectionName != nil && *d.NextSectionName != ""
}

// TestHeads flattens every question group of the section in display order.
func (d *SectionData) TestHeads() []TestHead {
	var heads []TestHead
	for _, p := range d.Parts {
		heads = append(heads, p.TestHeads...)
	}
	for _, p := range d.Passages {
		heads = append(heads, p.TestHeads...)
	}
	return heads
}

// EmbeddedAnswers collects user_answer values the backend returned with the content tree.
func (d *SectionData) EmbeddedAnswers() map[int]string {
	answers := make(map[int]string)
	for _, h := range d.TestHeads() {
		for _, q := range h.Questions {
			if q.UserAnswer != nil {
				answers[q.ID] = *q.UserAnswer
			}
		}
	}
	return answers
}

type ListeningPart struct {
	ID         int        `json:"id"`
	PartNumber int        `json:"part_number"`
	Title      string     `json:"title,omitempty"`
	AudioURL   string     `json:"audio_url,omitempty"`
	TestHeads  []TestHead `json:"test_heads"`
}

type ReadingPassage struct {
	ID            int        `json:"id"`
	PassageNumber int        `json:"passage_number"`
	Title         string     `json:"title,omitempty"`
	Text          string     `json:"text"`
	TestHeads     []TestHead `json:"test_heads"`
}

type WritingTask struct {
	ID         int     `json:"id"`
	TaskNumber int     `json:"task_number"`
	TaskType   string  `json:"task_type"`
	Prompt     string  `json:"prompt"`
	ImageURL   string  `json:"image_url,omitempty"`
	MinWords   int     `json:"min_words"`
	UserAnswer *string `json:"user_answer,omitempty"`
}

type SpeakingTopic struct {
	ID         int                `json:"id"`
	PartNumber int                `json:"part_number"`
	Title      string             `json:"title"`
	Questions  []SpeakingQuestion `json:"questions"`
}

type SpeakingQuestion struct {
	Key          string `json:"question_key"`
	Text         string `json:"text"`
	AudioURL     string `json:"audio_url,omitempty"`
	ResponseTime *int   `json:"response_time,omitempty"`
}

type AnswerSubmission struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

type WritingSubmission struct {
	TaskID     int    `json:"task_id"`
	TaskType   string `json:"task_type"`
	AnswerText string `json:"answer_text"`
}

type SpeakingSubmission struct {
	QuestionKey string
	FileName    string
	Audio       []byte
}

type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type WritingResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
	SavedAt   string `json:"saved_at,omitempty"`
}

type NextSectionResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	CurrentSection string `json:"current_section,omitempty"`
	Status         string `json:"status,omitempty"`
}

type PingResult struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e ErrorResponse) Text() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	default:
		return e.Error
	}
}

type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
