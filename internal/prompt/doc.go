// Package prompt renders the instructions sent to the generation provider
// for each pipeline stage. Wording lives in text/template sources that can be
// overridden per stage from a YAML file.
package prompt
