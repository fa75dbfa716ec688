// Wordbatch reviews a folder of Word documents with an LLM.
//
// Each .docx file is extracted to plain text, fitted to the token budget by
// truncation or chunking, rendered into a prompt and sent to a chat
// completions endpoint. One Markdown report is written per document along
// with a summary.csv and run.json for the run.
//
// Usage:
//
//	wordbatch run --input-dir ./docs                  # review every .docx under ./docs
//	wordbatch run --input-file ./docs/plan.docx       # review a single document
//	wordbatch run --input-dir ./docs --retry-failed   # re-run only failures
//	wordbatch status --output-dir ./docs              # summarize the last run
//	wordbatch doctor                                  # check endpoint and credential
package main
