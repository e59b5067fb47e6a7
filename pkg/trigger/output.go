// Copyright 2024-2026 Aiku AI

package trigger

import "fmt"

// OutputKind tells which variant an Output holds.
type OutputKind int

const (
	outputInvalid OutputKind = iota
	// OutputText is a plain chat message.
	OutputText
	// OutputImage is an image referenced by URL.
	OutputImage
)

func (k OutputKind) String() string {
	switch k {
	case OutputText:
		return "text"
	case OutputImage:
		return "image"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// Output is a single reply. It holds exactly one of a text body or an image
// URL; use [Text] or [Image] to build one. The zero value is not a valid
// output.
type Output struct {
	kind  OutputKind
	value string
}

// Text returns a text output.
func Text(body string) Output {
	return Output{kind: OutputText, value: body}
}

// Image returns an image output pointing at url.
func Image(url string) Output {
	return Output{kind: OutputImage, value: url}
}

// Kind returns the variant held by o.
func (o Output) Kind() OutputKind {
	return o.kind
}

// Valid reports whether o was built through Text or Image.
func (o Output) Valid() bool {
	return o.kind == OutputText || o.kind == OutputImage
}

// Text returns the body of a text output and false for any other variant.
func (o Output) Text() (string, bool) {
	if o.kind != OutputText {
		return "", false
	}
	return o.value, true
}

// ImageURL returns the URL of an image output and false for any other variant.
func (o Output) ImageURL() (string, bool) {
	if o.kind != OutputImage {
		return "", false
	}
	return o.value, true
}

func (o Output) String() string {
	switch o.kind {
	case OutputText:
		return o.value
	case OutputImage:
		return "[image] " + o.value
	default:
		return "<invalid output>"
	}
}
