package catalog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

// Field names shared by every default schema.
const (
	FieldContent      = "content"
	FieldNgrams       = "ngrams"
	FieldCreator      = "creator"
	FieldContainerID  = "containerId"
	FieldSharedWith   = "sharedWith"
	FieldTags         = "tags"
	FieldLastModified = "lastModified"
)

// Content types known to the default registry.
const (
	TypeNote        = "note"
	TypeHighlight   = "highlight"
	TypeRedaction   = "redaction"
	TypeMessageInfo = "messageinfo"
	TypePost        = "post"
	TypeBookContent = "bookcontent"
)

// Kind selects the index implementation backing a field.
type Kind int

const (
	KindText Kind = iota
	KindNgram
	KindKeyword
	KindExact
	KindNumeric
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNgram:
		return "ngram"
	case KindKeyword:
		return "keyword"
	case KindExact:
		return "exact"
	case KindNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// Field describes one indexed field and how to read it off an object.
type Field struct {
	Name    string
	Kind    Kind
	Extract func(*content.Object) index.Value
}

// Schema is the field set of a content type. Every catalog of the same type
// has the same fields.
type Schema struct {
	Type   string
	Fields []Field
	// Text is the searchable text of an object; it feeds the content and
	// ngram fields and is stored for snippets.
	Text func(*content.Object) string
}

// Registry maps content types to schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

// DefaultRegistry returns a registry with the built-in content types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	bodyText := func(o *content.Object) string { return o.Text() }
	selectionText := func(o *content.Object) string {
		return strings.TrimSpace(o.SelectedText + " " + o.Body)
	}
	r.Register(NewSchema(TypeNote, bodyText))
	r.Register(NewSchema(TypeHighlight, selectionText))
	r.Register(NewSchema(TypeRedaction, selectionText))
	r.Register(NewSchema(TypeMessageInfo, bodyText))
	r.Register(NewSchema(TypePost, bodyText))
	r.Register(NewSchema(TypeBookContent, bodyText))
	return r
}

// NewSchema builds a schema with the common field set over text.
func NewSchema(typ string, text func(*content.Object) string) Schema {
	textValue := func(o *content.Object) index.Value { return index.Value{Text: text(o)} }
	return Schema{
		Type: typ,
		Text: text,
		Fields: []Field{
			{Name: FieldContent, Kind: KindText, Extract: textValue},
			{Name: FieldNgrams, Kind: KindNgram, Extract: textValue},
			{Name: FieldCreator, Kind: KindExact, Extract: func(o *content.Object) index.Value {
				return index.Value{Key: o.Creator}
			}},
			{Name: FieldContainerID, Kind: KindExact, Extract: func(o *content.Object) index.Value {
				return index.Value{Key: o.ContainerID}
			}},
			{Name: FieldSharedWith, Kind: KindKeyword, Extract: func(o *content.Object) index.Value {
				return index.Value{Keywords: o.SharedWith}
			}},
			{Name: FieldTags, Kind: KindKeyword, Extract: func(o *content.Object) index.Value {
				return index.Value{Keywords: o.Tags}
			}},
			{Name: FieldLastModified, Kind: KindNumeric, Extract: func(o *content.Object) index.Value {
				return index.Value{Number: o.LastModified.Unix()}
			}},
		},
	}
}

func (r *Registry) Register(s Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Type] = s
}

// Lookup returns the schema for typ or ErrUnknownContentType.
func (r *Registry) Lookup(typ string) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[typ]
	if !ok {
		return Schema{}, fmt.Errorf("content type %q: %w", typ, apperrors.ErrUnknownContentType)
	}
	return s, nil
}

// Types returns the registered content types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	return types
}
