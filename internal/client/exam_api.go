package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"IELTS-Exam-Runtime/internal/model"
)

// ExamApi translates session intents into backend calls.
type ExamApi struct {
	client *ApiClient
}

func NewExamApi(c *ApiClient) *ExamApi {
	return &ExamApi{client: c}
}

func attemptPath(attemptID, suffix string) string {
	return fmt.Sprintf("/exams/attempts/%s/%s", url.PathEscape(attemptID), suffix)
}

func (a *ExamApi) GetSectionData(ctx context.Context, attemptID, section string) (*model.SectionData, error) {
	var data model.SectionData
	path := attemptPath(attemptID, "sections/"+url.PathEscape(section)+"/")
	if err := a.client.Do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, fmt.Errorf("load %s section: %w", section, err)
	}
	if _, err := data.Kind(); err != nil {
		return nil, fmt.Errorf("load %s section: %w", section, err)
	}
	return &data, nil
}

func (a *ExamApi) SubmitAnswer(ctx context.Context, attemptID string, sub model.AnswerSubmission) (*model.SubmitResult, error) {
	var res model.SubmitResult
	if err := a.client.Do(ctx, http.MethodPost, attemptPath(attemptID, "answers/"), sub, &res); err != nil {
		return nil, fmt.Errorf("submit answer %d: %w", sub.QuestionID, err)
	}
	if !res.Success {
		return &res, &ValidationError{Op: "submit answer " + strconv.Itoa(sub.QuestionID), Message: res.Message}
	}
	return &res, nil
}

func (a *ExamApi) SubmitWriting(ctx context.Context, attemptID string, sub model.WritingSubmission) (*model.WritingResult, error) {
	var res model.WritingResult
	if err := a.client.Do(ctx, http.MethodPost, attemptPath(attemptID, "writing/"), sub, &res); err != nil {
		return nil, fmt.Errorf("submit writing task %d: %w", sub.TaskID, err)
	}
	if !res.Success {
		return &res, &ValidationError{Op: "submit writing task " + strconv.Itoa(sub.TaskID), Message: res.Message}
	}
	return &res, nil
}

func (a *ExamApi) SubmitSpeaking(ctx context.Context, attemptID string, sub model.SpeakingSubmission) (*model.SubmitResult, error) {
	name := sub.FileName
	if name == "" {
		name = sub.QuestionKey + ".webm"
	}
	var res model.SubmitResult
	err := a.client.DoMultipart(ctx, attemptPath(attemptID, "speaking/"),
		map[string]string{"question_key": sub.QuestionKey},
		FilePart{Field: "audio_file", FileName: name, Content: sub.Audio},
		&res)
	if err != nil {
		return nil, fmt.Errorf("submit speaking %s: %w", sub.QuestionKey, err)
	}
	if !res.Success {
		return &res, &ValidationError{Op: "submit speaking " + sub.QuestionKey, Message: res.Message}
	}
	return &res, nil
}

func (a *ExamApi) NextSection(ctx context.Context, attemptID string) (*model.NextSectionResult, error) {
	var res model.NextSectionResult
	if err := a.client.Do(ctx, http.MethodPost, attemptPath(attemptID, "next-section/"), nil, &res); err != nil {
		return nil, fmt.Errorf("advance section: %w", err)
	}
	if !res.Success {
		return &res, &ValidationError{Op: "advance section", Message: res.Message}
	}
	return &res, nil
}

func (a *ExamApi) SubmitTest(ctx context.Context, attemptID string) (*model.SubmitResult, error) {
	var res model.SubmitResult
	if err := a.client.Do(ctx, http.MethodPost, attemptPath(attemptID, "submit/"), nil, &res); err != nil {
		return nil, fmt.Errorf("submit test: %w", err)
	}
	if !res.Success {
		return &res, &ValidationError{Op: "submit test", Message: res.Message}
	}
	return &res, nil
}

func (a *ExamApi) Ping(ctx context.Context) (*model.PingResult, error) {
	var res model.PingResult
	if err := a.client.Do(ctx, http.MethodGet, "/ping/", nil, &res); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &res, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *ExamApi) Login(ctx context.Context, username, password string) (*model.Credentials, error) {
	var creds model.Credentials
	if err := a.client.DoPublic(ctx, http.MethodPost, "/auth/token/", loginRequest{Username: username, Password: password}, &creds); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if creds.Access == "" {
		return nil, &ValidationError{Op: "login", Message: "no access token returned"}
	}
	return &creds, nil
}
