// Package filter decides which new feed entries are worth posting to the room.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"billfred/internal/model"
)

// Entry is a feed entry as it would be posted: its title and its body with
// markup already stripped.
type Entry struct {
	Title string
	Body  string
}

type matcher func(text string) bool

// Set is the compiled filter list of one feed. The zero value and a nil *Set
// pass every entry.
type Set struct {
	include []matcher
	exclude []matcher
}

// Compile builds a Set from a feed's filters. Words match as case-insensitive
// substrings, regexes are compiled case-insensitive.
func Compile(filters []model.Filter) (*Set, error) {
	s := &Set{}
	for _, f := range filters {
		m, err := compileOne(f)
		if err != nil {
			return nil, err
		}
		switch f.Kind {
		case model.FilterInclude, model.FilterIncludeRe:
			s.include = append(s.include, m)
		case model.FilterExclude, model.FilterExcludeRe:
			s.exclude = append(s.exclude, m)
		}
	}
	return s, nil
}

func compileOne(f model.Filter) (matcher, error) {
	switch f.Kind {
	case model.FilterIncludeRe, model.FilterExcludeRe:
		re, err := regexp.Compile("(?i)" + f.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", f.Value, err)
		}
		return re.MatchString, nil
	case model.FilterInclude, model.FilterExclude:
		word := strings.ToLower(f.Value)
		return func(text string) bool { return strings.Contains(text, word) }, nil
	}
	return nil, fmt.Errorf("unknown filter kind %q", f.Kind)
}

// Match reports whether e should be posted. An entry matching any exclude
// filter is dropped. When include filters exist at least one must match.
func (s *Set) Match(e Entry) bool {
	if s == nil {
		return true
	}
	text := strings.ToLower(e.Title + "\n" + e.Body)
	for _, m := range s.exclude {
		if m(text) {
			return false
		}
	}
	if len(s.include) == 0 {
		return true
	}
	for _, m := range s.include {
		if m(text) {
			return true
		}
	}
	return false
}

// Validate checks that every filter compiles.
func Validate(filters []model.Filter) error {
	_, err := Compile(filters)
	return err
}
