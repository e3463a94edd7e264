// Package gemini implements generation.Generator on Google's Gemini API
// through the google.golang.org/genai client. Each Generate call is a single
// request in JSON response mode; retries belong to the caller.
package gemini
