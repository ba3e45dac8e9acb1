package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const MaxTags = 10

type CatalogSource string

const (
	SourcePrimary   CatalogSource = "primary"
	SourceSecondary CatalogSource = "secondary"
	SourceFallback  CatalogSource = "fallback"
)

// FlexibleID accepts both JSON numbers and strings. The primary backend sends integers,
// the partner catalog sends opaque strings; both compare by their string form.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

func (id FlexibleID) String() string {
	return string(id)
}

type Hairstyle struct {
	ID          FlexibleID    `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category"`
	Tags        []string      `json:"tags"`
	ImageURL    string        `json:"image_url"`
	UploadedBy  string        `json:"uploaded_by"`
	CreatedAt   Timestamp     `json:"created_at"`
	Source      CatalogSource `json:"source,omitempty"`
}

type HairstyleFilter struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}

type HairstylePage struct {
	Items  []Hairstyle `json:"hairstyles"`
	Total  int         `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type NewHairstyle struct {
	Name        string
	Description string
	CategoryID  int
	Tags        []string
	Filename    string
	Image       []byte
}

// NormalizeTags lower-cases, trims and de-duplicates tags, keeping first-seen order and
// at most MaxTags entries.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}
