package workflow

import (
	"path"
	"strings"
)

// Pipe identifies one named data slot produced by a widget.
type Pipe struct {
	Name           string
	SourceWidgetID string
}

func (p Pipe) String() string {
	return p.SourceWidgetID + "/" + p.Name
}

// Kind tells how the value of a PipeData must be read.
type Kind string

const (
	// KindInline means the value is the literal content.
	KindInline Kind = "inline"
	// KindURL means the value is a retrieval address and the content is fetched lazily.
	KindURL Kind = "url"
)

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindInline:
		return KindInline, true
	case KindURL:
		return KindURL, true
	default:
		return "", false
	}
}

// Format tells how fetched content was interpreted.
type Format string

const (
	// FormatText is opaque text or binary content.
	FormatText Format = "text"
	// FormatJSON is content parsed from a .json artifact.
	FormatJSON Format = "json"
)

// FormatFor returns the format used for an artifact named name.
func FormatFor(name string) Format {
	if strings.EqualFold(path.Ext(name), ".json") {
		return FormatJSON
	}

	return FormatText
}

// Content is the downloaded content of a url pipe data.
type Content struct {
	Format Format
	// Text holds the raw content for FormatText.
	Text string
	// Data holds the decoded document for FormatJSON. It must be treated as read only.
	Data interface{}
}

// PipeData is the value currently bound to a pipe.
//
// PipeData is a value object: every state transition builds a new one.
type PipeData struct {
	PipeName string
	WidgetID string
	Type     Kind
	Value    string
	// Fetched is nil until the content of a url pipe data has been downloaded.
	Fetched *Content
	// FetchError records the last failed download of a url pipe data.
	FetchError string
	// SelectedLigand is the candidate chosen by the user for a structure exposing several ligands.
	SelectedLigand string
}

// NewInline returns an inline pipe data.
func NewInline(widgetID, pipeName, value string) PipeData {
	return PipeData{WidgetID: widgetID, PipeName: pipeName, Type: KindInline, Value: value}
}

// NewURL returns a pending url pipe data.
func NewURL(widgetID, pipeName, url string) PipeData {
	return PipeData{WidgetID: widgetID, PipeName: pipeName, Type: KindURL, Value: url}
}

// Pipe returns the pipe this data is bound to.
func (pd PipeData) Pipe() Pipe {
	return Pipe{Name: pd.PipeName, SourceWidgetID: pd.WidgetID}
}

// Pending reports whether the content of the pipe data is not available yet.
func (pd PipeData) Pending() bool {
	switch pd.Type {
	case KindInline:
		return false
	case KindURL:
		return pd.Fetched == nil
	default:
		return true
	}
}

// Ready reports whether the content of the pipe data can be used.
func (pd PipeData) Ready() bool {
	return !pd.Pending()
}

// WithFetched returns a copy of pd holding the downloaded content.
func (pd PipeData) WithFetched(content Content) PipeData {
	pd.Fetched = &content
	pd.FetchError = ""

	return pd
}

// WithFetchError returns a copy of pd recording a failed download.
func (pd PipeData) WithFetchError(err error) PipeData {
	pd.Fetched = nil
	pd.FetchError = err.Error()

	return pd
}

// WithSelectedLigand returns a copy of pd with name selected.
func (pd PipeData) WithSelectedLigand(name string) PipeData {
	pd.SelectedLigand = name

	return pd
}

// SameValue reports whether pd and other are bound to the same pipe with the same value.
func (pd PipeData) SameValue(other PipeData) bool {
	return pd.WidgetID == other.WidgetID &&
		pd.PipeName == other.PipeName &&
		pd.Type == other.Type &&
		pd.Value == other.Value
}

// Text returns the textual content of the pipe data. ok is false while it is pending.
func (pd PipeData) Text() (string, bool) {
	switch pd.Type {
	case KindInline:
		return pd.Value, true
	case KindURL:
		if pd.Fetched == nil || pd.Fetched.Format != FormatText {
			return "", false
		}

		return pd.Fetched.Text, true
	default:
		return "", false
	}
}

// Document returns the parsed JSON document of the pipe data, if any.
//
// Inline values are parsed when the pipe name has a .json extension.
func (pd PipeData) Document() (interface{}, bool) {
	switch pd.Type {
	case KindInline:
		if FormatFor(pd.PipeName) != FormatJSON {
			return nil, false
		}
		doc, err := DecodeDocument([]byte(pd.Value))
		if err != nil {
			return nil, false
		}

		return doc, true
	case KindURL:
		if pd.Fetched == nil || pd.Fetched.Format != FormatJSON {
			return nil, false
		}

		return pd.Fetched.Data, true
	default:
		return nil, false
	}
}
