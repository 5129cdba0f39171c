// Package content defines the external representation of a searchable
// content object as it travels on the change stream and out of the identity
// resolver.
package content

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Object is a user-generated or static content object. The index never holds
// an Object; it stores a doc id and re-resolves the object at query time.
type Object struct {
	Key          string    `json:"key"`
	Type         string    `json:"type"`
	Class        string    `json:"class,omitempty"`
	Creator      string    `json:"creator"`
	ContainerID  string    `json:"container_id,omitempty"`
	SharedWith   []string  `json:"shared_with,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"body,omitempty"`
	SelectedText string    `json:"selected_text,omitempty"`
	LastModified time.Time `json:"last_modified"`
	Deleted      bool      `json:"deleted,omitempty"`
}

// IsEmpty reports whether o carries nothing that could be indexed.
func (o *Object) IsEmpty() bool {
	return o == nil || o.Key == ""
}

// Text returns the searchable text of o: title, body and any selected text,
// joined in that order.
func (o *Object) Text() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{o.Title, o.Body, o.SelectedText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// SharedWithPrincipal reports whether principal is a direct share recipient.
func (o *Object) SharedWithPrincipal(principal string) bool {
	for _, p := range o.SharedWith {
		if p == principal {
			return true
		}
	}
	return false
}

// Decode parses the external JSON representation of an object.
func Decode(data []byte) (*Object, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decoding content object: %w", err)
	}
	return &obj, nil
}
