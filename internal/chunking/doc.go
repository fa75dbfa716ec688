// Package chunking sizes document text against a token budget.
//
// Token counts are a cheap estimate (one token per four characters), good
// enough for budget decisions and never used for billing. Oversized text is
// either cut down to a head and tail around an elision marker, or split into
// paragraph-aligned chunks for map-reduce summarization.
package chunking
