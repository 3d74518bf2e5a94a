package workflow

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// DecodeDocument parses a JSON artifact into a generic document.
func DecodeDocument(data []byte) (interface{}, error) {
	var doc interface{}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "unable to decode json document")
	}

	return doc, nil
}

// DecodeContent builds the Content of an artifact named name from its raw bytes.
func DecodeContent(name string, data []byte) (Content, error) {
	switch FormatFor(name) {
	case FormatJSON:
		doc, err := DecodeDocument(data)
		if err != nil {
			return Content{}, err
		}

		return Content{Format: FormatJSON, Data: doc}, nil
	case FormatText:
		return Content{Format: FormatText, Text: string(data)}, nil
	default:
		return Content{}, errors.Errorf("unknown format for %s", name)
	}
}
