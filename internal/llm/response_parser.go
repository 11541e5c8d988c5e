package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/scrypster/recollect/pkg/types"
)

// UnverifiedObjectLabel marks objects the model could not identify; they are dropped.
const UnverifiedObjectLabel = "unverified_object"

// defaultObjectConfidence is used when the model omits a confidence value.
const defaultObjectConfidence = 0.6

// ObjectResponse represents a single object extracted from an LLM response.
type ObjectResponse struct {
	Label        string                 `json:"label"`
	Confidence   float64                `json:"confidence"`
	Position     string                 `json:"position,omitempty"`
	Verification types.ConfirmationType `json:"verification"`
}

type rawObject struct {
	Label        string          `json:"label"`
	Confidence   json.RawMessage `json:"confidence"`
	Position     string          `json:"position"`
	Verification string          `json:"verification"`
}

// ObjectExtractionResponse represents the complete object extraction response.
type ObjectExtractionResponse struct {
	Objects []rawObject `json:"objects_detected"`
	// Some models answer with "objects" regardless of the instructions.
	Alt []rawObject `json:"objects"`
}

// KeywordExtractionResponse represents the keyword extraction response
type KeywordExtractionResponse struct {
	Keywords []string `json:"keywords"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseObjectResponse parses object extraction JSON and filters out unusable entries.
// Unverified, empty or out-of-range objects are skipped rather than failing the batch;
// duplicates keep their highest confidence. Only malformed JSON is an error.
//
// Confidence may be numeric or one of "high", "medium", "low" (0.9, 0.6, 0.3).
func ParseObjectResponse(jsonStr string) ([]ObjectResponse, error) {
	var response ObjectExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(jsonStr)), &response); err != nil {
		return nil, fmt.Errorf("failed to parse object JSON: %w", err)
	}

	raw := response.Objects
	if len(raw) == 0 {
		raw = response.Alt
	}

	index := make(map[string]int)
	var out []ObjectResponse
	for _, r := range raw {
		label := types.NormalizeLabel(r.Label)
		if label == "" || label == UnverifiedObjectLabel {
			continue
		}
		conf, ok := parseConfidence(r.Confidence)
		if !ok {
			continue
		}
		obj := ObjectResponse{
			Label:        label,
			Confidence:   conf,
			Position:     strings.TrimSpace(r.Position),
			Verification: parseVerification(r.Verification),
		}
		if i, seen := index[label]; seen {
			if obj.Confidence > out[i].Confidence {
				out[i] = obj
			}
			continue
		}
		index[label] = len(out)
		out = append(out, obj)
	}
	return out, nil
}

func parseConfidence(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return defaultObjectConfidence, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "high":
			return 0.9, true
		case "medium":
			return 0.6, true
		case "low":
			return 0.3, true
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, f >= 0 && f <= 1
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, f >= 0 && f <= 1
}

func parseVerification(s string) types.ConfirmationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inferred", "inference":
		return types.ConfirmedInferred
	case "audio", "spoken":
		return types.ConfirmedAudio
	default:
		return types.ConfirmedVisual
	}
}

// ParseKeywordResponse parses keyword extraction JSON response.
// Empty and duplicate keywords are dropped.
func ParseKeywordResponse(jsonStr string) ([]string, error) {
	var response KeywordExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(jsonStr)), &response); err != nil {
		return nil, fmt.Errorf("failed to parse keyword JSON: %w", err)
	}

	seen := make(map[string]bool, len(response.Keywords))
	keywords := make([]string, 0, len(response.Keywords))
	for _, kw := range response.Keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		keywords = append(keywords, kw)
	}
	return keywords, nil
}

// ParseIntentResponse parses intent classification JSON.
// Unknown intents become general_search; an object search without an object
// also degrades to general_search. Unknown time biases become "none".
func ParseIntentResponse(jsonStr string) (*types.IntentResult, error) {
	var response types.IntentResult
	if err := json.Unmarshal([]byte(extractJSON(jsonStr)), &response); err != nil {
		return nil, fmt.Errorf("failed to parse intent JSON: %w", err)
	}

	response.Object = types.NormalizeLabel(response.Object)
	switch strings.ToLower(strings.TrimSpace(response.Intent)) {
	case types.IntentObjectSearch:
		response.Intent = types.IntentObjectSearch
		if response.Object == "" {
			response.Intent = types.IntentGeneralSearch
		}
	default:
		response.Intent = types.IntentGeneralSearch
	}
	if response.Intent != types.IntentObjectSearch {
		response.Object = ""
	}

	switch bias := strings.ToLower(strings.TrimSpace(response.TimeBias)); bias {
	case types.TimeBiasRecent, types.TimeBiasToday, types.TimeBiasYesterday, types.TimeBiasWeek:
		response.TimeBias = bias
	default:
		response.TimeBias = types.TimeBiasNone
	}
	return &response, nil
}

// AnswerSections holds the four sections of a synthesized answer.
type AnswerSections struct {
	DirectAnswer string
	Evidence     string
	Context      string
	Confidence   types.ConfidenceLabel
}

var sectionHeaders = []string{"direct answer", "evidence", "context", "confidence"}

// ParseAnswerSections splits a synthesized answer into its sections.
// Headers are matched case-insensitively and may carry markdown decoration
// ("**Direct Answer:**", "## Evidence"). ok is true only when all four
// sections are present and non-empty. Confidence is empty when the label is
// not one of High, Medium or Low.
func ParseAnswerSections(text string) (sections AnswerSections, ok bool) {
	current := ""
	parts := make(map[string]*strings.Builder)

	for _, line := range strings.Split(text, "\n") {
		header, rest := matchSectionHeader(line)
		if header != "" {
			current = header
			if parts[current] == nil {
				parts[current] = &strings.Builder{}
			}
			line = rest
		}
		if current == "" {
			continue
		}
		b := parts[current]
		if b.Len() > 0 && strings.TrimSpace(line) != "" {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(line))
	}

	get := func(name string) string {
		if b := parts[name]; b != nil {
			return strings.TrimSpace(b.String())
		}
		return ""
	}

	sections.DirectAnswer = get("direct answer")
	sections.Evidence = get("evidence")
	sections.Context = get("context")
	confidence := get("confidence")
	if label, valid := types.ParseConfidenceLabel(firstWord(confidence)); valid && label != types.ConfidenceNone {
		sections.Confidence = label
	}
	ok = sections.DirectAnswer != "" && sections.Evidence != "" && sections.Context != "" && confidence != ""
	return sections, ok
}

func matchSectionHeader(line string) (header, rest string) {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "#*-_ ")
	lower := strings.ToLower(trimmed)
	for _, h := range sectionHeaders {
		if !strings.HasPrefix(lower, h) {
			continue
		}
		after := strings.TrimLeft(trimmed[len(h):], "*_ ")
		if after == "" {
			return h, ""
		}
		if after[0] == ':' {
			return h, strings.TrimLeft(after[1:], "*_ ")
		}
	}
	return "", ""
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, "*_ ")
	if i := strings.IndexAny(s, " .,;\n*"); i >= 0 {
		s = s[:i]
	}
	return s
}
