// Package gemini implements the generation.Generator interface using
// Google's Gemini API. It owns prompt rendering, response parsing, timeout
// bounding, and retry policy for transient API failures.
package gemini
