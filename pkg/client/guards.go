package client

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Guard limits bounding resource use on malformed or adversarial responses.
// These are hard caps, not per-request settings: they exist to bound
// worst-case memory and stack use, not to tune throughput.
const (
	// DefaultMaxResponseBytes caps the size of any single response body.
	DefaultMaxResponseBytes = 100 << 20 // 100 MB

	// DefaultMaxParseDepth caps nesting depth of JSON and XML payloads.
	DefaultMaxParseDepth = 50

	// DefaultMaxTreeNodes caps the total node count of tree payloads
	// (JSON values, XML elements).
	DefaultMaxTreeNodes = 50000
)

var (
	errTooDeep      = errors.New("structure exceeds depth limit")
	errTooManyNodes = errors.New("structure exceeds node limit")
)

// checkJSONStructure walks the token stream iteratively and fails when the
// payload nests deeper than maxDepth or carries more than maxNodes values.
// Walking tokens instead of unmarshalling keeps the check allocation-light
// and immune to call-stack overflow on hostile nesting.
func checkJSONStructure(data []byte, maxDepth, maxNodes int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	depth := 0
	nodes := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("json token stream: %w", err)
		}

		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > maxDepth {
					return fmt.Errorf("%w: depth > %d", errTooDeep, maxDepth)
				}
			case '}', ']':
				depth--
			}
			continue
		}

		nodes++
		if nodes > maxNodes {
			return fmt.Errorf("%w: nodes > %d", errTooManyNodes, maxNodes)
		}
	}
}

// checkXMLStructure counts start elements and nesting depth in an XML
// payload, failing past the limits. Entity expansion is not resolved, so
// the count reflects the wire form.
func checkXMLStructure(data []byte, maxDepth, maxElements int) error {
	dec := xml.NewDecoder(bytes.NewReader(data))

	depth := 0
	elements := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml token stream: %w", err)
		}

		switch tok.(type) {
		case xml.StartElement:
			depth++
			elements++
			if depth > maxDepth {
				return fmt.Errorf("%w: depth > %d", errTooDeep, maxDepth)
			}
			if elements > maxElements {
				return fmt.Errorf("%w: elements > %d", errTooManyNodes, maxElements)
			}
		case xml.EndElement:
			depth--
		}
	}
}
