package content

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Block is a portable text block
type Block struct {
	Key      string    `json:"_key,omitempty"`
	Type     string    `json:"_type"`
	Style    string    `json:"style,omitempty"`
	ListItem string    `json:"listItem,omitempty"`
	Level    int       `json:"level,omitempty"`
	Children []Span    `json:"children,omitempty"`
	MarkDefs []MarkDef `json:"markDefs,omitempty"`
}

// Span is a run of text inside a block
type Span struct {
	Key   string   `json:"_key,omitempty"`
	Type  string   `json:"_type"`
	Text  string   `json:"text"`
	Marks []string `json:"marks,omitempty"`
}

// MarkDef is an annotation (link, reference) referenced from span marks
type MarkDef struct {
	Key  string `json:"_key"`
	Type string `json:"_type"`
	Href string `json:"href,omitempty"`
}

// Decorators allowed in limited rich text
const (
	MarkStrong = "strong"
	MarkEm     = "em"
)

// PlainText flattens blocks into text, one line per block
func PlainText(blocks []Block) string {
	var lines []string
	for _, b := range blocks {
		if b.Type != "block" {
			continue
		}
		var sb strings.Builder
		for _, c := range b.Children {
			sb.WriteString(c.Text)
		}
		if sb.Len() > 0 {
			lines = append(lines, sb.String())
		}
	}
	return strings.Join(lines, "\n")
}

// limitedRichText validates paragraphs that carry only bold or italic emphasis
type limitedRichText struct{}

// LimitedRichText is the rule applied to review text and special descriptions
var LimitedRichText validation.Rule = limitedRichText{}

func (limitedRichText) Validate(value interface{}) error {
	blocks, ok := value.([]Block)
	if !ok {
		return fmt.Errorf("must be rich text blocks")
	}
	for i, b := range blocks {
		if err := checkLimitedBlock(b); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

func checkLimitedBlock(b Block) error {
	if b.Type != "block" {
		return fmt.Errorf("type %q is not allowed", b.Type)
	}
	if b.Style != "" && b.Style != "normal" {
		return fmt.Errorf("style %q is not allowed", b.Style)
	}
	if b.ListItem != "" {
		return fmt.Errorf("lists are not allowed")
	}
	if len(b.MarkDefs) > 0 {
		return fmt.Errorf("annotations are not allowed")
	}
	for _, span := range b.Children {
		for _, m := range span.Marks {
			if m != MarkStrong && m != MarkEm {
				return fmt.Errorf("mark %q is not allowed", m)
			}
		}
	}
	return nil
}
