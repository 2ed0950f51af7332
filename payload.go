package pinfetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ValueKind tags the variant held by a Value
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Member is one key/value pair of an object, kept in document order
type Member struct {
	Key   string
	Value *Value
}

// Value is a JSON document node. Objects keep their members in source order
// so walks over the same payload always visit leaves in the same sequence.
type Value struct {
	Kind    ValueKind
	Bool    bool
	Number  json.Number
	String  string
	Items   []*Value
	Members []Member
}

// ParseValue decodes a single JSON document into a Value tree
func ParseValue(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

// ParsePayload decodes script contents as JSON, falling back to treating
// the whole text as one string leaf when it is not a JSON document.
func ParsePayload(text string) *Value {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Value{Kind: KindNull}
	}
	if v, err := ParseValue([]byte(text)); err == nil {
		return v
	}
	return &Value{Kind: KindString, String: text}
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case nil:
		return &Value{Kind: KindNull}, nil
	case bool:
		return &Value{Kind: KindBool, Bool: t}, nil
	case json.Number:
		return &Value{Kind: KindNumber, Number: t}, nil
	case string:
		return &Value{Kind: KindString, String: t}, nil
	case json.Delim:
		switch t {
		case '[':
			v := &Value{Kind: KindArray}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				v.Items = append(v.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return v, nil
		case '{':
			v := &Value{Kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				v.Members = append(v.Members, Member{Key: key, Value: member})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Leaf is a string value reached during a walk.
// Path holds the object keys from the root down to the leaf; array positions are not recorded.
type Leaf struct {
	Key   string
	Path  []string
	Value string
}

// Ancestor returns the key n levels above the leaf's own key, or "" if there is none
func (l Leaf) Ancestor(n int) string {
	i := len(l.Path) - 1 - n
	if i < 0 || i >= len(l.Path) {
		return ""
	}
	return l.Path[i]
}

// Walk visits every string leaf of v in document order
func Walk(v *Value, fn func(Leaf)) {
	walk(v, nil, fn)
}

func walk(v *Value, path []string, fn func(Leaf)) {
	if v == nil {
		return
	}
	switch v.Kind {
	case KindString:
		key := ""
		if len(path) > 0 {
			key = path[len(path)-1]
		}
		fn(Leaf{Key: key, Path: path, Value: v.String})
	case KindArray:
		for _, item := range v.Items {
			walk(item, path, fn)
		}
	case KindObject:
		for _, m := range v.Members {
			next := make([]string, len(path)+1)
			copy(next, path)
			next[len(path)] = m.Key
			walk(m.Value, next, fn)
		}
	}
}

// Predicate returns the video URLs a leaf contributes, or nil when it does not match
type Predicate func(Leaf) []string

var videoFieldNames = map[string]bool{
	"video_url":    true,
	"videoUrl":     true,
	"url":          true,
	"high_res_url": true,
}

// VideoFieldPredicate matches well-known video field names holding a stream or mp4 URL
func VideoFieldPredicate(l Leaf) []string {
	if !videoFieldNames[l.Key] {
		return nil
	}
	lower := strings.ToLower(l.Value)
	if strings.Contains(lower, ".mp4") || strings.Contains(lower, ".m3u8") {
		return []string{l.Value}
	}
	return nil
}

// VideoListPredicate matches url fields nested inside a videos collection
func VideoListPredicate(l Leaf) []string {
	if l.Key != "url" {
		return nil
	}
	if l.Ancestor(1) != "videos" && l.Ancestor(2) != "videos" {
		return nil
	}
	if !strings.HasPrefix(l.Value, "http://") && !strings.HasPrefix(l.Value, "https://") {
		return nil
	}
	return []string{l.Value}
}

// PatternPredicate extracts every match of the given patterns from a leaf's text,
// after undoing JSON-style escaped slashes.
func PatternPredicate(patterns ...*regexp.Regexp) Predicate {
	return func(l Leaf) []string {
		text := strings.ReplaceAll(l.Value, `\/`, "/")
		var urls []string
		for _, re := range patterns {
			urls = append(urls, re.FindAllString(text, -1)...)
		}
		return urls
	}
}

// DefaultPredicates returns the predicate set used for video payload walks
func DefaultPredicates(videoCDN string) []Predicate {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`https?://[^"'\s\\]+?\.mp4[^"'\s\\]*`),
		regexp.MustCompile(`https?://[^"'\s\\]+?/video/[^"'\s\\]+`),
	}
	if videoCDN != "" {
		patterns = append(patterns, regexp.MustCompile(`https?://`+regexp.QuoteMeta(videoCDN)+`[^"'\s\\]+`))
	}
	return []Predicate{
		VideoFieldPredicate,
		VideoListPredicate,
		PatternPredicate(patterns...),
	}
}

// CollectVideoURLs walks v and gathers every URL reported by the predicates, in walk order
func CollectVideoURLs(v *Value, predicates []Predicate) []string {
	var urls []string
	Walk(v, func(l Leaf) {
		for _, p := range predicates {
			urls = append(urls, p(l)...)
		}
	})
	return urls
}
