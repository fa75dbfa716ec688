// Package prompt validates and renders per-document prompt templates.
//
// Templates use {name} placeholders with {{ and }} as literal braces. Only
// the variables in AllowedVariables may be referenced. Rendering appends a
// content section when the template never mentions {content}, and a
// metadata section when metadata is supplied but not referenced.
package prompt
