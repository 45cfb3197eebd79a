package models

import (
	"encoding/json"
	"fmt"
)

// Verdicts the analysis model is allowed to return
const (
	VerdictMalicious = "Malicious"
	VerdictSpam      = "Spam"
	VerdictGraymail  = "Graymail"
	VerdictBenign    = "Benign"
	VerdictUnknown   = "Unknown"
)

// DetectionRule is a single, simple detection rule suggested by the analysis
type DetectionRule struct {
	Type  string `json:"type" example:"subject_keyword"`
	Value any    `json:"value"`
}

// Analysis is the structured evaluation of one email
// @Description LLM analysis of an uploaded email
type Analysis struct {
	Verdict  string          `json:"verdict" example:"Malicious"`
	Category string          `json:"category" example:"Credential Harvesting (Phishing)"`
	Reason   string          `json:"reason"`
	Rules    []DetectionRule `json:"rules"`
}

// ValidVerdict reports whether v is one of the known verdicts
func ValidVerdict(v string) bool {
	switch v {
	case VerdictMalicious, VerdictSpam, VerdictGraymail, VerdictBenign, VerdictUnknown:
		return true
	}
	return false
}

// AnalysisFailure is the body returned when the file was stored but evaluation failed
type AnalysisFailure struct {
	Error   string `json:"error" example:"Ollama analysis failed"`
	Details string `json:"details"`
}

// UploadResult is the decoded body of a successful upload. The backend returns either an
// Analysis or an AnalysisFailure, so the flag fields are kept loosely typed.
type UploadResult struct {
	Analysis
	Error   any             `json:"error,omitempty"`
	Details any             `json:"details,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw body next to the decoded fields
func (r *UploadResult) UnmarshalJSON(data []byte) error {
	type plain UploadResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = UploadResult(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Failed reports a soft failure: the upload was stored but a downstream step did not complete
func (r *UploadResult) Failed() bool {
	return truthy(r.Error)
}

// FailureDetails returns the human-readable context of a soft failure
func (r *UploadResult) FailureDetails() string {
	if d := Stringify(r.Details); d != "" {
		return d
	}
	return Stringify(r.Error)
}

// truthy mirrors loose truthiness of decoded JSON values
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return true
	case map[string]any:
		return true
	default:
		return true
	}
}

// Stringify renders a decoded JSON value for display. Strings are returned as-is, other
// values are re-encoded.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
