package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
)

// Variable names recognized in templates.
const (
	VarFilename = "filename"
	VarFilepath = "filepath"
	VarContent  = "content"
	VarMeta     = "meta"
)

// AllowedVariables lists every variable a template may reference.
var AllowedVariables = []string{VarFilename, VarFilepath, VarContent, VarMeta}

const (
	contentSection = "\n\n## Document content\n{content}\n"
	metaSection    = "\n\n## Document metadata\n{meta}\n"
)

// DefaultTemplate is used when no prompt file is configured.
const DefaultTemplate = `You are a strict and objective reviewer of written documents. Base every conclusion only on the document content provided below.

Respond with:
1. An overall score from 1 to 10 with a one-sentence justification.
2. Three strengths, one sentence each, citing facts from the text.
3. Three issues that must be fixed, one sentence each, citing facts from the text.
4. One paragraph of 3 to 5 sentences with concrete next steps.

Do not invent content and do not hedge.`

// TemplateError reports an invalid template or missing variable.
type TemplateError struct {
	Msg string
}

func (e *TemplateError) Error() string {
	return e.Msg
}

type segment struct {
	literal string
	field   string
	isField bool
}

// parse splits a template into literal and field segments.
func parse(tpl string) ([]segment, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return nil, &TemplateError{Msg: "unmatched '{' in template"}
			}
			name := tpl[i+1 : i+1+end]
			if strings.ContainsRune(name, '{') {
				return nil, &TemplateError{Msg: "unexpected '{' in template field"}
			}
			if idx := strings.IndexAny(name, ":!"); idx >= 0 {
				name = name[:idx]
			}
			if lit.Len() > 0 {
				segs = append(segs, segment{literal: lit.String()})
				lit.Reset()
			}
			segs = append(segs, segment{field: name, isField: true})
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &TemplateError{Msg: "single '}' encountered in template"}
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		segs = append(segs, segment{literal: lit.String()})
	}
	return segs, nil
}

// Validate returns the set of variables the template references. It fails
// with a *TemplateError if any reference is outside AllowedVariables or the
// template is malformed.
func Validate(tpl string) (map[string]bool, error) {
	segs, err := parse(tpl)
	if err != nil {
		return nil, err
	}
	return usedFields(segs)
}

func usedFields(segs []segment) (map[string]bool, error) {
	used := make(map[string]bool)
	for _, s := range segs {
		if !s.isField {
			continue
		}
		if !slices.Contains(AllowedVariables, s.field) {
			return nil, &TemplateError{Msg: fmt.Sprintf("unknown template variable: %s", s.field)}
		}
		used[s.field] = true
	}
	return used, nil
}

// Render substitutes vars into tpl. String values are inserted verbatim;
// a non-string meta value is serialized as JSON.
func Render(tpl string, vars map[string]any) (string, error) {
	used, err := Validate(tpl)
	if err != nil {
		return "", err
	}

	effective := tpl
	if !used[VarContent] {
		effective = strings.TrimRight(effective, " \t\r\n") + contentSection
		used[VarContent] = true
	}
	if _, ok := vars[VarMeta]; ok && !used[VarMeta] {
		effective = strings.TrimRight(effective, " \t\r\n") + metaSection
		used[VarMeta] = true
	}

	var missing []string
	for name := range used {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &TemplateError{Msg: "missing template variables: " + strings.Join(missing, ", ")}
	}

	values := make(map[string]string, len(vars))
	for name, v := range vars {
		s, err := stringify(v)
		if err != nil {
			return "", &TemplateError{Msg: fmt.Sprintf("encoding template variable %s: %v", name, err)}
		}
		values[name] = s
	}

	segs, err := parse(effective)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range segs {
		if s.isField {
			b.WriteString(values[s.field])
		} else {
			b.WriteString(s.literal)
		}
	}
	return b.String(), nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// EnvPromptFile names the environment variable consulted by LoadTemplate.
const EnvPromptFile = "WORDBATCH_PROMPT_FILE"

// LoadTemplate resolves the prompt template: an explicit path, then the
// file named by WORDBATCH_PROMPT_FILE, then DefaultTemplate. An explicit
// path that cannot be read is an error; an unreadable env path falls back.
func LoadTemplate(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		return string(data), nil
	}
	if envPath := os.Getenv(EnvPromptFile); envPath != "" {
		if data, err := os.ReadFile(envPath); err == nil {
			return string(data), nil
		}
	}
	return DefaultTemplate, nil
}
