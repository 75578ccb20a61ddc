// Package ufdr reads Cellebrite UFDR report documents as a lazy stream of
// model elements. Parsing is forward-only, namespace-agnostic (names are
// matched by local name), and never materializes the document tree: a
// model's parse subtree is released as soon as the model is returned.
package ufdr

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
)

var (
	// ErrMalformedArchive means the archive holds no report document.
	ErrMalformedArchive = errors.New("report document not found in archive")

	// ErrMalformedXML means the report document is unparsable at the
	// current offset. Fatal to the domain pass, not to sibling passes.
	ErrMalformedXML = errors.New("malformed report xml")
)

const reportName = "report.xml"

// ValueKind discriminates the FieldValue variants.
type ValueKind int

const (
	// ScalarValue is a plain string value.
	ScalarValue ValueKind = iota
	// StructuredValue is an ordered list of named child values
	// (multi-value fields, parties, attachments).
	StructuredValue
)

// FieldValue is the tagged variant produced by the field/value decoder.
type FieldValue struct {
	Kind     ValueKind
	Scalar   string
	Children []Field
}

// Field is one (name, value) pair of a model element.
type Field struct {
	Name  string
	Value FieldValue
}

// Model is one namespace-stripped forensic record from the report document.
type Model struct {
	Type               string
	ID                 string
	DeletedState       string
	DecodingConfidence string
	Fields             []Field
	RawXML             string
}

// Scalar returns the first scalar field with the given name.
func (m *Model) Scalar(name string) (string, bool) {
	return ScalarOf(m.Fields, name)
}

// Structured returns the children of the first structured field with the
// given name.
func (m *Model) Structured(name string) ([]Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name && f.Value.Kind == StructuredValue {
			return f.Value.Children, true
		}
	}
	return nil, false
}

// SnapshotJSON renders the decoded field tree as JSON for provenance.
func (m *Model) SnapshotJSON() string {
	b, err := marshalFields(m.Fields)
	if err != nil {
		return ""
	}
	return string(b)
}

// ScalarOf returns the first scalar value named name within fields.
func ScalarOf(fields []Field, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name && f.Value.Kind == ScalarValue {
			return f.Value.Scalar, true
		}
	}
	return "", false
}

// ScalarList returns the scalar children of a structured value in order.
func (v FieldValue) ScalarList() []string {
	if v.Kind != StructuredValue {
		return nil
	}
	var out []string
	for _, c := range v.Children {
		if c.Value.Kind == ScalarValue && c.Value.Scalar != "" {
			out = append(out, c.Value.Scalar)
		}
	}
	return out
}

// ModelReader is a forward-only cursor over the report document's model
// elements. Each domain pass opens its own reader; readers must not be
// shared across goroutines.
type ModelReader struct {
	zr  *zip.ReadCloser
	rc  io.ReadCloser
	dec *xml.Decoder
}

// OpenReport locates the report document inside the archive and opens a
// fresh entry stream over it.
func OpenReport(archivePath string) (*ModelReader, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var entry *zip.File
	for _, f := range zr.File {
		if path.Base(f.Name) == reportName {
			entry = f
			break
		}
	}
	if entry == nil {
		zr.Close()
		return nil, ErrMalformedArchive
	}

	rc, err := entry.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("failed to open report entry: %w", err)
	}

	return &ModelReader{zr: zr, rc: rc, dec: xml.NewDecoder(rc)}, nil
}

// Close releases the report stream and the archive handle.
func (r *ModelReader) Close() error {
	if err := r.rc.Close(); err != nil {
		r.zr.Close()
		return err
	}
	return r.zr.Close()
}

// Next advances to the next model element whose type attribute is in types
// (any type when empty) and returns it fully decoded. io.EOF signals the end
// of the document. A decode failure inside a matching model surfaces as
// ErrMalformedXML; a failure while skipping foreign content truncates the
// pass at the records already yielded.
func (r *ModelReader) Next(types ...string) (*Model, error) {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "model" {
			// container element: descend into it
			continue
		}

		typ := findAttr(se, "type")
		if len(want) > 0 && !want[typ] {
			if err := r.dec.Skip(); err != nil {
				// The damage sits inside a record of another domain;
				// this pass keeps what it already extracted.
				log.Printf("ufdr: truncated while skipping %s model: %v", typ, err)
				return nil, io.EOF
			}
			continue
		}

		return r.parseModel(se)
	}
}

func (r *ModelReader) parseModel(start xml.StartElement) (*Model, error) {
	m := &Model{
		Type:               findAttr(start, "type"),
		ID:                 findAttr(start, "id"),
		DeletedState:       findAttr(start, "deleted_state"),
		DecodingConfidence: findAttr(start, "decoding_confidence"),
	}

	var raw bytes.Buffer
	enc := xml.NewEncoder(&raw)
	echoStart(enc, start)

	fields, err := r.decodeFields(enc)
	if err != nil {
		return nil, err
	}
	m.Fields = fields

	if err := enc.Flush(); err == nil {
		m.RawXML = raw.String()
	}
	return m, nil
}

// decodeFields walks one level of children of the currently open element
// until its end tag, producing one Field per field/multiField/modelField/
// multiModelField child. Everything read is echoed into enc so the caller
// keeps a namespace-stripped source fragment.
func (r *ModelReader) decodeFields(enc *xml.Encoder) ([]Field, error) {
	var fields []Field
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, wrapXML(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			echoEnd(enc, t)
			return fields, nil
		case xml.CharData:
			echoText(enc, t)
		case xml.StartElement:
			echoStart(enc, t)
			name := findAttr(t, "name")
			switch t.Name.Local {
			case "field":
				val, ok, err := r.decodeScalarField(enc)
				if err != nil {
					return nil, err
				}
				if ok {
					fields = append(fields, Field{Name: name, Value: FieldValue{Kind: ScalarValue, Scalar: val}})
				}
			case "multiField":
				children, err := r.decodeValueList(enc)
				if err != nil {
					return nil, err
				}
				fields = append(fields, Field{Name: name, Value: FieldValue{Kind: StructuredValue, Children: children}})
			case "modelField", "multiModelField":
				children, err := r.decodeModelList(enc)
				if err != nil {
					return nil, err
				}
				fields = append(fields, Field{Name: name, Value: FieldValue{Kind: StructuredValue, Children: children}})
			default:
				if err := r.echoSubtree(enc); err != nil {
					return nil, err
				}
			}
		}
	}
}

// decodeScalarField consumes an open field element, returning the text of
// its value child. ok is false when the field carries no value node.
func (r *ModelReader) decodeScalarField(enc *xml.Encoder) (string, bool, error) {
	var val strings.Builder
	found := false
	inValue := false
	depth := 0

	for {
		tok, err := r.dec.Token()
		if err != nil {
			return "", false, wrapXML(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			echoStart(enc, t)
			depth++
			if t.Name.Local == "value" && !found {
				inValue = true
				found = true
			}
		case xml.EndElement:
			echoEnd(enc, t)
			if depth == 0 {
				return val.String(), found, nil
			}
			depth--
			if t.Name.Local == "value" {
				inValue = false
			}
		case xml.CharData:
			if inValue {
				val.Write(t)
			}
			echoText(enc, t)
		}
	}
}

// decodeValueList consumes an open multiField element, returning one scalar
// child per value node.
func (r *ModelReader) decodeValueList(enc *xml.Encoder) ([]Field, error) {
	var children []Field
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, wrapXML(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			echoEnd(enc, t)
			return children, nil
		case xml.CharData:
			echoText(enc, t)
		case xml.StartElement:
			echoStart(enc, t)
			if t.Name.Local != "value" {
				if err := r.echoSubtree(enc); err != nil {
					return nil, err
				}
				continue
			}
			text, err := r.captureText(enc)
			if err != nil {
				return nil, err
			}
			children = append(children, Field{Name: "value", Value: FieldValue{Kind: ScalarValue, Scalar: text}})
		}
	}
}

// decodeModelList consumes an open modelField/multiModelField element,
// returning one structured child per nested model, named by its model type.
func (r *ModelReader) decodeModelList(enc *xml.Encoder) ([]Field, error) {
	var children []Field
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, wrapXML(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			echoEnd(enc, t)
			return children, nil
		case xml.CharData:
			echoText(enc, t)
		case xml.StartElement:
			echoStart(enc, t)
			if t.Name.Local != "model" {
				if err := r.echoSubtree(enc); err != nil {
					return nil, err
				}
				continue
			}
			sub, err := r.decodeFields(enc)
			if err != nil {
				return nil, err
			}
			children = append(children, Field{
				Name:  findAttr(t, "type"),
				Value: FieldValue{Kind: StructuredValue, Children: sub},
			})
		}
	}
}

// captureText consumes an open element until its end tag, returning its
// concatenated character data.
func (r *ModelReader) captureText(enc *xml.Encoder) (string, error) {
	var text strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := r.dec.Token()
		if err != nil {
			return "", wrapXML(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			echoStart(enc, t)
			depth++
		case xml.EndElement:
			echoEnd(enc, t)
			depth--
		case xml.CharData:
			text.Write(t)
			echoText(enc, t)
		}
	}
	return text.String(), nil
}

// echoSubtree consumes an already-opened unrecognized element through its
// end tag, preserving it in the raw fragment.
func (r *ModelReader) echoSubtree(enc *xml.Encoder) error {
	depth := 1
	for depth > 0 {
		tok, err := r.dec.Token()
		if err != nil {
			return wrapXML(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			echoStart(enc, t)
			depth++
		case xml.EndElement:
			echoEnd(enc, t)
			depth--
		case xml.CharData:
			echoText(enc, t)
		}
	}
	return nil
}

func wrapXML(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedXML, err)
}

// findAttr matches attributes by local name, ignoring namespace qualifiers.
func findAttr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func echoStart(enc *xml.Encoder, t xml.StartElement) {
	attrs := make([]xml.Attr, 0, len(t.Attr))
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: a.Name.Local}, Value: a.Value})
	}
	enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: t.Name.Local}, Attr: attrs})
}

func echoEnd(enc *xml.Encoder, t xml.EndElement) {
	enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: t.Name.Local}})
}

func echoText(enc *xml.Encoder, t xml.CharData) {
	enc.EncodeToken(t)
}
