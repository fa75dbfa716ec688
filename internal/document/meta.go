package document

// Meta describes the shape of an extracted document. It is embedded, as a
// read-only snapshot, into every rendered prompt.
type Meta struct {
	ParagraphCount int  `json:"paragraph_count"`
	TableCount     int  `json:"table_count"`
	CharCount      int  `json:"char_count"`
	TokenEst       int  `json:"token_est"`
	WasTruncated   bool `json:"was_truncated"`
	ChunkCount     int  `json:"chunk_count"`
}

// NewMeta returns metadata with the defaults every document starts with.
func NewMeta() Meta {
	return Meta{ChunkCount: 1}
}

// Fields returns the metadata as an ordered map, ready to be extended with
// per-call keys such as chunk indexes.
func (m Meta) Fields() map[string]any {
	return map[string]any{
		"paragraph_count": m.ParagraphCount,
		"table_count":     m.TableCount,
		"char_count":      m.CharCount,
		"token_est":       m.TokenEst,
		"was_truncated":   m.WasTruncated,
		"chunk_count":     m.ChunkCount,
	}
}
