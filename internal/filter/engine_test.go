package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"billfred/internal/model"
)

func TestSetMatch(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		filters []model.Filter
		want    bool
	}{
		{
			name:  "no filters passes everything",
			entry: Entry{Title: "anything", Body: "whatever"},
			want:  true,
		},
		{
			name:    "include word in title",
			entry:   Entry{Title: "Linux 6.12 released", Body: "New drivers"},
			filters: []model.Filter{{Kind: model.FilterInclude, Value: "LINUX"}},
			want:    true,
		},
		{
			name:    "include word only in body",
			entry:   Entry{Title: "Weekly news", Body: "The 6.12 kernel is out.\nHighlights include real-time support."},
			filters: []model.Filter{{Kind: model.FilterInclude, Value: "real-time"}},
			want:    true,
		},
		{
			name:    "include word missing",
			entry:   Entry{Title: "Python update", Body: "New features"},
			filters: []model.Filter{{Kind: model.FilterInclude, Value: "linux"}},
			want:    false,
		},
		{
			name:    "exclude word drops entry",
			entry:   Entry{Title: "Sponsored: buy a laptop"},
			filters: []model.Filter{{Kind: model.FilterExclude, Value: "sponsored"}},
			want:    false,
		},
		{
			name:  "exclude wins over include",
			entry: Entry{Title: "Linux vacancy", Body: "Apply now"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "linux"},
				{Kind: model.FilterExclude, Value: "vacancy"},
			},
			want: false,
		},
		{
			name:  "any include is enough",
			entry: Entry{Title: "Debian 13"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Value: "gentoo"},
				{Kind: model.FilterInclude, Value: "debian"},
			},
			want: true,
		},
		{
			name:    "regex include",
			entry:   Entry{Title: "Kernel v6.12-rc3"},
			filters: []model.Filter{{Kind: model.FilterIncludeRe, Value: `v\d+\.\d+`}},
			want:    true,
		},
		{
			name:    "regex exclude ignores case",
			entry:   Entry{Title: "Online COURSE on shell Training"},
			filters: []model.Filter{{Kind: model.FilterExcludeRe, Value: "course.*training"}},
			want:    false,
		},
		{
			name:    "title and body do not run together",
			entry:   Entry{Title: "release", Body: "notes"},
			filters: []model.Filter{{Kind: model.FilterInclude, Value: "release notes"}},
			want:    false,
		},
		{
			name:    "cyrillic word",
			entry:   Entry{Title: "Новости ядра Linux", Body: "Обзор"},
			filters: []model.Filter{{Kind: model.FilterInclude, Value: "ЯДРА"}},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compile(tt.filters)
			if err != nil {
				t.Fatalf("Compile() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, s.Match(tt.entry)); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNilSetPasses(t *testing.T) {
	var s *Set
	if !s.Match(Entry{Title: "anything"}) {
		t.Error("nil set dropped an entry")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		filters []model.Filter
		wantErr bool
	}{
		{name: "plain words are never compiled", filters: []model.Filter{{Kind: model.FilterInclude, Value: "[x"}}},
		{name: "valid alternation", filters: []model.Filter{{Kind: model.FilterIncludeRe, Value: "k8s|docker"}}},
		{name: "invalid unclosed bracket", filters: []model.Filter{{Kind: model.FilterExcludeRe, Value: "[invalid"}}, wantErr: true},
		{name: "invalid bad repetition", filters: []model.Filter{{Kind: model.FilterIncludeRe, Value: "*bad"}}, wantErr: true},
		{name: "unknown kind", filters: []model.Filter{{Kind: "maybe", Value: "x"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.filters)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("Validate() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
