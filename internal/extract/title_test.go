package extract

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/charmap"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks [][]byte
	reads  int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.chunks) > 0 && len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	c.reads++
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	return n, nil
}

func chunks(parts ...string) *chunkReader {
	c := &chunkReader{}
	for _, p := range parts {
		c.chunks = append(c.chunks, []byte(p))
	}
	return c
}

func cp1251(t *testing.T, s string) string {
	t.Helper()
	out, err := charmap.Windows1251.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode cp1251: %v", err)
	}
	return out
}

// newsPage is a Russian page with no charset declaration anywhere.
const newsPage = "<html><head><title>Новости дня</title></head><body>" +
	"<p>Сегодня в городе прошло заседание городского совета, на котором депутаты обсудили бюджет на следующий год.</p>" +
	"<p>По словам председателя, основные расходы будут направлены на ремонт дорог, строительство новых школ и развитие общественного транспорта.</p>" +
	"<p>Жители города смогут высказать своё мнение о проекте бюджета на публичных слушаниях, которые пройдут в конце месяца.</p>" +
	"<p>Кроме того, совет утвердил план благоустройства парков и скверов, а также выделил средства на освещение улиц в новых районах.</p>" +
	"<p>Мэр отметил, что все решения будут опубликованы на официальном сайте администрации в течение недели.</p>" +
	"<p>Следующее заседание совета назначено на первую пятницу следующего месяца.</p>" +
	"</body></html>"

func TestTitleAnySplitPoint(t *testing.T) {
	const page = "<html><head><title>Hello</title></head></html>"

	for i := 0; i <= len(page); i++ {
		got, err := Title(chunks(page[:i], page[i:]), "", "example.com")
		if err != nil {
			t.Fatalf("split at %d: unexpected error: %v", i, err)
		}
		if diff := cmp.Diff("Hello", got); diff != "" {
			t.Errorf("split at %d: title mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name    string
		body    func(t *testing.T) string
		charset string
		host    string
		want    string
		wantErr error
	}{
		{
			name: "trims whitespace and decodes entities",
			body: func(*testing.T) string { return "<title>\n  Tom &amp; Jerry \n</title>" },
			want: "Tom & Jerry",
		},
		{
			name:    "declared charset",
			body:    func(t *testing.T) string { return "<title>" + cp1251(t, "Привет") + "</title>" },
			charset: "windows-1251",
			want:    "Привет",
		},
		{
			name: "meta charset detected",
			body: func(t *testing.T) string {
				return `<html><head><meta charset="windows-1251"><title>` + cp1251(t, "Новости") + "</title>"
			},
			want: "Новости",
		},
		{
			name: "utf-8 detected",
			body: func(*testing.T) string { return "<title>Заголовок</title>" },
			want: "Заголовок",
		},
		{
			name: "undeclared cp1251 detected",
			body: func(t *testing.T) string { return cp1251(t, newsPage) },
			want: "Новости дня",
		},
		{
			name: "undetectable charset",
			body: func(*testing.T) string {
				return "<html><head><title>\x81\x83\x88\x98\x8d\x8f\x90\x9d</title></head>" +
					"<body><p>\x8d\x8f\x81\x9d\x90</p></body></html>"
			},
			wantErr: ErrUndetectableCharset,
		},
		{
			name:    "no title",
			body:    func(*testing.T) string { return "<html><body>nothing here</body></html>" },
			wantErr: ErrNoTitle,
		},
		{
			name:    "empty title",
			body:    func(*testing.T) string { return "<title>   </title>" },
			wantErr: ErrNoTitle,
		},
		{
			name:    "empty body",
			body:    func(*testing.T) string { return "" },
			wantErr: ErrNoTitle,
		},
		{
			name: "video host prefers meta title",
			body: func(*testing.T) string {
				return `<html><head><title>Some video - YouTube</title><meta name="title" content="Some video"></head>`
			},
			host: "www.youtube.com",
			want: "Some video - YouTube",
		},
		{
			name: "video host falls back to title",
			body: func(*testing.T) string { return "<html><head><title>Channel - YouTube</title></head><body>" },
			host: "youtu.be",
			want: "Channel - YouTube",
		},
		{
			name: "meta title ignored for other hosts",
			body: func(*testing.T) string {
				return `<head><meta name="title" content="Meta"><title>Real</title></head>`
			},
			host: "example.org",
			want: "Real",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Title(strings.NewReader(tt.body(t)), tt.charset, tt.host)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Title() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTitleStopsReading(t *testing.T) {
	r := chunks(
		"<html><head><title>Early</title></head>",
		strings.Repeat("<p>filler</p>", 200),
		strings.Repeat("<p>more filler</p>", 200),
	)

	got, err := Title(r, "utf-8", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff("Early", got); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if r.reads > 2 {
		t.Errorf("read %d chunks, want the tail of the stream left unread", r.reads)
	}
}

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name   string
		chunk  []byte
		wantOK bool
	}{
		{name: "ascii", chunk: []byte("<html>"), wantOK: true},
		{name: "utf-8 with cut rune", chunk: []byte("<p>да\xd0"), wantOK: true},
		{name: "utf-16 bom", chunk: []byte("\xff\xfe<\x00"), wantOK: true},
		{name: "meta latin-1", chunk: []byte("<meta charset=\"iso-8859-1\"><p>caf\xe9"), wantOK: true},
		{name: "undeclared latin text", chunk: []byte("<p>caf\xe9 \xe0 la carte"), wantOK: true},
		{name: "control bytes only", chunk: []byte("\x81\x8d\x8f\x90\x9d\x81\x8d"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectEncoding(tt.chunk) != nil
			if diff := cmp.Diff(tt.wantOK, got); diff != "" {
				t.Errorf("DetectEncoding() found mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTitleSmallReads(t *testing.T) {
	page := cp1251(t, newsPage)
	var parts []string
	for len(page) > 0 {
		n := min(64, len(page))
		parts = append(parts, page[:n])
		page = page[n:]
	}

	got, err := Title(chunks(parts...), "", "example.ru")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff("Новости дня", got); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text untouched", in: "just text", want: "just text"},
		{name: "inline tags and entities", in: "<p>Hello &amp; <b>world</b></p>", want: "Hello & world"},
		{name: "script dropped", in: "<div>a</div><script>alert(1)</script>b", want: "a\nb"},
		{name: "line breaks", in: "one<br>two<br/>three", want: "one\ntwo\nthree"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, StripTags(tt.in)); diff != "" {
				t.Errorf("StripTags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
