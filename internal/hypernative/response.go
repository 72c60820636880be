// Package hypernative integrates the Hypernative transaction assessment
// service: OAuth login, token storage, the assessment API and the mapping of
// its findings onto Safe Shield results.
package hypernative

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Vendor severities.
const (
	SeverityAccept = "accept"
	SeverityWarn   = "warn"
	SeverityDeny   = "deny"
)

// Risk is one vendor finding.
type Risk struct {
	Title       string `json:"title"`
	Details     string `json:"details"`
	Severity    string `json:"severity"`
	SafeCheckID string `json:"safeCheckId"`
}

// FindingGroup is a list of risks under one finding category.
type FindingGroup struct {
	Status   string `json:"status,omitempty"`
	Severity string `json:"severity,omitempty"`
	Risks    []Risk `json:"risks"`
}

// Findings holds the two categories the vendor reports.
type Findings struct {
	ThreatAnalysis FindingGroup `json:"THREAT_ANALYSIS"`
	CustomChecks   FindingGroup `json:"CUSTOM_CHECKS"`
}

// Assessment is either *Success or *Failure.
type Assessment interface {
	isAssessment()
}

// Success is a completed assessment.
type Success struct {
	AssessmentID   string   `json:"assessmentId,omitempty"`
	Recommendation string   `json:"recommendation"`
	Interpretation string   `json:"interpretation,omitempty"`
	Findings       Findings `json:"findings"`
}

// Failure is the vendor's structured error envelope.
type Failure struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (*Success) isAssessment() {}
func (*Failure) isAssessment() {}

// ErrEmptyResponse is returned for a body that carries neither envelope.
var ErrEmptyResponse = errors.New("hypernative: empty assessment response")

type envelope struct {
	Status         string          `json:"status"`
	Success        *bool           `json:"success"`
	AssessmentData *Success        `json:"assessmentData"`
	Data           *Success        `json:"data"`
	Error          json.RawMessage `json:"error"`
}

// DecodeResponse parses an assessment response body. A failure envelope is
// returned as a *Failure value, not as an error.
func DecodeResponse(body []byte) (Assessment, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("hypernative: decode response: %w", err)
	}

	failed := strings.EqualFold(env.Status, "FAILED") || (env.Success != nil && !*env.Success)
	if failed || hasValue(env.Error) {
		return decodeFailure(env.Error), nil
	}

	switch {
	case env.AssessmentData != nil:
		return env.AssessmentData, nil
	case env.Data != nil:
		return env.Data, nil
	}
	return nil, ErrEmptyResponse
}

func decodeFailure(raw json.RawMessage) *Failure {
	f := &Failure{}
	if !hasValue(raw) {
		return f
	}
	if json.Unmarshal(raw, f) == nil {
		return f
	}
	// Some endpoints report the error as a bare string.
	var msg string
	if json.Unmarshal(raw, &msg) == nil {
		f.Message = msg
	}
	return f
}

func hasValue(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
