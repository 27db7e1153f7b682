// Package tokenizer provides token counting used to reserve token volume
// against the per-minute rate window before a request is dispatched.
//
// Two implementations exist: a tiktoken-backed counter for accurate counts
// and a character-ratio estimator that needs no encoding data. The batch
// layer only requires the small Tokenizer interface.
package tokenizer
