package chatbot

import (
	"fmt"
	"strings"

	"chatd/internal/inference"
)

// Template is the single-placeholder prompt format:
//
//	<Question> <instruction>\n<Answer>
type Template struct {
	Question string
	Answer   string
}

var (
	// DefaultTemplate renders "### Question: {instruction}\n### Answer:".
	DefaultTemplate = Template{Question: "### Question:", Answer: "### Answer:"}
	// VietnameseTemplate is the format PhoGPT chat models are tuned on.
	VietnameseTemplate = Template{Question: "### Câu hỏi:", Answer: "### Trả lời:"}
)

// TemplateByName returns a preset: "en" (or "") and "vi".
func TemplateByName(name string) (Template, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "en", "default":
		return DefaultTemplate, nil
	case "vi", "vietnamese":
		return VietnameseTemplate, nil
	default:
		return Template{}, fmt.Errorf("unknown prompt template %q", name)
	}
}

// Validate rejects templates whose markers could not be found again in the output.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Question) == "" || strings.TrimSpace(t.Answer) == "" {
		return fmt.Errorf("prompt template markers must be non-empty")
	}
	if strings.Contains(t.Question, t.Answer) {
		return fmt.Errorf("question marker %q contains answer marker %q", t.Question, t.Answer)
	}
	return nil
}

// Format substitutes instruction into the template. The instruction is not
// trimmed or validated.
func (t Template) Format(instruction string) string {
	return t.Question + " " + instruction + "\n" + t.Answer
}

// Extract returns the text between the first answer marker in raw and the
// next one (if any), trimmed. A raw output without the marker yields a
// *inference.MalformedOutputError.
func (t Template) Extract(raw string) (string, error) {
	_, after, ok := strings.Cut(raw, t.Answer)
	if !ok {
		return "", &inference.MalformedOutputError{Marker: t.Answer}
	}
	if i := strings.Index(after, t.Answer); i >= 0 {
		after = after[:i]
	}
	return strings.TrimSpace(after), nil
}
