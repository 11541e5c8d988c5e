// Package llm provides the model integrations used by the memory engine:
// vision description, transcription, embeddings, object extraction, intent
// parsing and answer synthesis. It includes strict JSON-only prompt templates
// and tolerant response parsers that work with Ollama, OpenAI-compatible,
// Anthropic and Gemini models.
package llm

import (
	"fmt"
	"strings"
)

// PhotoVisionPrompt asks a vision model for a retrieval-friendly description of a photo.
const PhotoVisionPrompt = `Describe this photo for a personal memory archive.

RULES:
- Describe only what is visible. Do not guess identities.
- Name every distinct object you can clearly see, with its color and position.
- Mention the setting (room type, indoors/outdoors, lighting).
- Mention any readable text.
- End with one line: "Keywords: " followed by 5-10 comma-separated keywords.

Plain text only, no markdown.`

// VideoVisionPrompt asks a multimodal model to describe the visual track of a video.
const VideoVisionPrompt = `Describe the visual content of this video for a personal memory archive.

RULES:
- Describe only what is visible. Do not guess identities.
- Name every distinct object that appears, with where it appears.
- Describe the setting and the main actions in order.
- Ignore the audio; it is transcribed separately.

Plain text only, no markdown.`

// TranscriptionPrompt asks a multimodal model for a verbatim transcript.
const TranscriptionPrompt = `Transcribe all speech in this recording verbatim.
Return only the transcript text. If there is no speech, return an empty response.`

// KeywordExtractionPrompt generates a strict JSON-only prompt for keyword extraction
// from a transcript.
func KeywordExtractionPrompt(content string) string {
	return fmt.Sprintf(`Extract keywords. Return ONLY valid JSON, no markdown, no code blocks, no explanation.

Extract 5-10 important keywords or phrases: people, places, objects, topics.

Content:
%s

Return ONLY JSON object, nothing else, no markdown:
{"keywords":["...","..."]}`, content)
}

// ObjectExtractionPrompt generates a strict JSON-only prompt that lists the physical
// objects evidenced by a media description.
//
// Uncertain objects are labelled "unverified_object" so the parser can drop them;
// objects only implied by speech are marked "inferred".
func ObjectExtractionPrompt(description string) string {
	return fmt.Sprintf(`TASK: List the physical objects in this media description.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

RULES:
1. NEVER assume the identity of small objects unless the description is clear.
2. If an object is uncertain, label it "unverified_object".
3. Use short lowercase nouns for labels ("keys", "red backpack", "teddy bear").
4. verification is "visual" when the object was seen, "inferred" when it was only mentioned or implied.
5. confidence is a number between 0.0 and 1.0.

DESCRIPTION:
%s

REQUIRED JSON STRUCTURE:
{"objects_detected":[{"label":"...","confidence":0.9,"position":"...","verification":"visual"}]}

Return ONLY the JSON object.`, description)
}

// IntentPrompt generates a strict JSON-only prompt that classifies a memory question.
func IntentPrompt(query string) string {
	return fmt.Sprintf(`TASK: Classify a question about the user's own recorded memories.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

FIELDS:
- intent: "object_search" when the user asks where a specific physical object is or was last seen; otherwise "general_search".
- object: the object name in lowercase singular form when intent is "object_search", else "".
- time_bias: one of "none", "recent", "today", "yesterday", "week" based on time words in the question.

QUESTION:
%s

REQUIRED JSON STRUCTURE:
{"intent":"general_search","object":"","time_bias":"none"}

Return ONLY the JSON object.`, query)
}

// SynthesisPrompt asks a model to answer the question strictly from the given evidence.
// evidence is one line per record, as produced by FormatEvidence.
func SynthesisPrompt(query string, evidence []string) string {
	return fmt.Sprintf(`You answer questions about the user's own recorded memories.
Use ONLY the evidence below. If the evidence does not answer the question, say so.
Never invent objects, places or times that are not in the evidence.

QUESTION:
%s

EVIDENCE:
%s

Answer in exactly these four sections, plain text, no markdown headings:
Direct Answer: <one or two sentences>
Evidence: <which records support the answer>
Context: <relevant surrounding details>
Confidence: <High, Medium or Low>`, query, strings.Join(evidence, "\n"))
}

// FormatEvidence renders one evidence line for SynthesisPrompt.
func FormatEvidence(modality, description string) string {
	return fmt.Sprintf("- [%s] %s", modality, description)
}
