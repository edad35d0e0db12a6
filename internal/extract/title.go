// Package extract pulls human-readable text out of HTML streams.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Errors returned by Title. Both mean the page has no usable title.
var (
	ErrNoTitle             = errors.New("no title found")
	ErrUndetectableCharset = errors.New("cannot detect charset")
)

const (
	firstChunkSize = 1024
	videoSuffix    = " - YouTube"

	// minConfidence is the lowest chardet score accepted as a detection.
	// Short or tag-only input scores 10 on the multi-byte recognizers.
	minConfidence = 30
)

var videoHosts = map[string]struct{}{
	"youtube.com":       {},
	"www.youtube.com":   {},
	"m.youtube.com":     {},
	"music.youtube.com": {},
	"youtu.be":          {},
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([a-z0-9_:.-]+)`)

// Title reads r until the first <title> element is complete and returns its
// trimmed text. The stream is decoded incrementally with declaredCharset, or
// with a charset detected from the first chunk when none is declared. Reading
// stops as soon as the title is known.
//
// host is a bare hostname. For video-hosting hosts the <meta name="title">
// value is preferred and a site suffix is appended.
func Title(r io.Reader, declaredCharset, host string) (string, error) {
	first, err := readFirstChunk(r)
	if len(first) == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read body: %w", err)
		}
		return "", ErrNoTitle
	}

	enc := lookupEncoding(declaredCharset)
	if enc == nil {
		enc = DetectEncoding(first)
	}
	if enc == nil {
		return "", ErrUndetectableCharset
	}

	var stream io.Reader = bytes.NewReader(first)
	if err == nil {
		stream = io.MultiReader(stream, r)
	}

	return scanTitle(transform.NewReader(stream, enc.NewDecoder()), isVideoHost(host))
}

func scanTitle(r io.Reader, video bool) (string, error) {
	z := html.NewTokenizer(r)

	var buf strings.Builder
	var title string
	inTitle, haveTitle := false, false

	for {
		switch z.Next() {
		case html.ErrorToken:
			if haveTitle && title != "" {
				return title, nil
			}
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("tokenize: %w", err)
			}
			return "", ErrNoTitle
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "title":
				if !haveTitle {
					inTitle = true
					buf.Reset()
				}
			case "meta":
				if video && hasAttr {
					if v, ok := metaTitle(z); ok {
						return v + videoSuffix, nil
					}
				}
			}
		case html.TextToken:
			if inTitle {
				buf.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "title":
				if !inTitle {
					continue
				}
				inTitle = false
				haveTitle = true
				title = strings.TrimSpace(buf.String())
				if !video {
					if title == "" {
						return "", ErrNoTitle
					}
					return title, nil
				}
			case "head":
				if video && haveTitle && title != "" {
					return title, nil
				}
			}
		}
	}
}

func metaTitle(z *html.Tokenizer) (string, bool) {
	var isTitle bool
	var content string
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "name":
			isTitle = strings.EqualFold(string(val), "title")
		case "content":
			content = strings.TrimSpace(string(val))
		}
		if !more {
			break
		}
	}
	return content, isTitle && content != ""
}

// DetectEncoding guesses the charset of an HTML prefix from its BOM, a <meta>
// charset declaration or UTF-8 validity, then falls back to statistical
// detection. It returns nil when no detector is confident.
func DetectEncoding(chunk []byte) encoding.Encoding {
	// DetermineEncoding reports windows-1252 as its last-resort guess.
	if e, name, certain := charset.DetermineEncoding(chunk, ""); certain || name != "windows-1252" {
		return e
	}
	if m := metaCharsetRe.FindSubmatch(chunk); m != nil {
		if e := lookupEncoding(string(m[1])); e != nil {
			return e
		}
	}
	if validUTF8Prefix(chunk) {
		return unicode.UTF8
	}
	return guessEncoding(chunk)
}

func guessEncoding(chunk []byte) encoding.Encoding {
	results, err := chardet.NewHtmlDetector().DetectAll(chunk)
	if err != nil {
		return nil
	}
	for _, r := range results {
		if r.Confidence < minConfidence {
			break
		}
		if e := lookupEncoding(r.Charset); e != nil {
			return e
		}
	}
	return nil
}

func lookupEncoding(name string) encoding.Encoding {
	if name == "" {
		return nil
	}
	e, _ := charset.Lookup(name)
	return e
}

// validUTF8Prefix reports whether b is valid UTF-8, ignoring a rune cut off at
// the end of the chunk.
func validUTF8Prefix(b []byte) bool {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				b = b[:i]
			}
			break
		}
	}
	return utf8.Valid(b)
}

// readFirstChunk fills up to firstChunkSize bytes so detection sees a full
// chunk even when the transport delivers the body in small reads.
func readFirstChunk(r io.Reader) ([]byte, error) {
	buf := make([]byte, firstChunkSize)
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return buf[:n], err
}

func isVideoHost(host string) bool {
	_, ok := videoHosts[strings.ToLower(host)]
	return ok
}
