// Package m3u provides streaming parsing of extended M3U playlists.
// Entries are delivered through callbacks so arbitrarily large playlists
// never need to be held in memory at once.
package m3u

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
)

// Entry is a single playlist entry: one EXTINF line plus its URL line.
type Entry struct {
	// Duration is the declared duration in seconds (-1 for live streams).
	Duration int

	// TvgID is the EPG channel identifier from tvg-id.
	TvgID string

	// TvgName is the name from tvg-name.
	TvgName string

	// TvgLogo is the logo URL from tvg-logo.
	TvgLogo string

	// GroupTitle is the category from group-title.
	GroupTitle string

	// ChannelNumber is the tvg-chno attribute, kept verbatim.
	ChannelNumber string

	// Title is the display title after the EXTINF comma.
	Title string

	// URL is the stream URL.
	URL string

	// Extra holds attributes the parser does not recognise.
	Extra map[string]string
}

// Parser walks a playlist and invokes OnEntry per complete entry.
type Parser struct {
	// OnEntry is called for each parsed entry. Required. Returning an
	// error aborts the parse.
	OnEntry func(entry *Entry) error

	// OnError is called for recoverable per-line errors.
	// If nil, malformed lines are skipped silently.
	OnError func(lineNum int, err error)
}

var (
	// #EXTINF:-1 tvg-id="..." group-title="...",Display Name
	extinfRegex = regexp.MustCompile(`^#EXTINF:\s*(-?\d+)\s*(.*)$`)

	// key="value" or bare key=value
	attrRegex = regexp.MustCompile(`([a-zA-Z0-9_-]+)=(?:"([^"]*)"|([^\s,]+))`)
)

// maxLineSize accommodates playlists with very long tokenised URLs.
const maxLineSize = 1024 * 1024

// Parse reads an uncompressed playlist from r.
func (p *Parser) Parse(r io.Reader) error {
	if p.OnEntry == nil {
		return fmt.Errorf("OnEntry callback is required")
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	var pending *Entry
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, "#EXTINF:"):
			entry, err := parseExtinf(line)
			if err != nil {
				p.reportError(lineNum, err)
				pending = nil
				continue
			}
			pending = entry

		case strings.HasPrefix(line, "#"):
			// header or directive we don't interpret
			continue

		default:
			if pending == nil {
				p.reportError(lineNum, fmt.Errorf("stream URL without preceding EXTINF"))
				continue
			}
			pending.URL = line
			if err := p.OnEntry(pending); err != nil {
				return fmt.Errorf("entry callback at line %d: %w", lineNum, err)
			}
			pending = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning playlist: %w", err)
	}
	return nil
}

// ParseCompressed parses a playlist that may be gzip, bzip2, or xz
// compressed, detected by magic bytes. Plain text passes through.
func (p *Parser) ParseCompressed(r io.Reader) error {
	br := bufio.NewReader(r)

	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return fmt.Errorf("peeking header: %w", err)
	}

	var reader io.Reader = br
	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		reader = bzip2.NewReader(br)

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' &&
		header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	}

	return p.Parse(reader)
}

func parseExtinf(line string) (*Entry, error) {
	matches := extinfRegex.FindStringSubmatch(line)
	if matches == nil {
		return nil, fmt.Errorf("malformed EXTINF line")
	}

	duration, _ := strconv.Atoi(matches[1])
	remainder := matches[2]

	entry := &Entry{
		Duration: duration,
		Extra:    make(map[string]string),
	}

	// Title is everything after the last comma outside quotes.
	if idx := titleComma(remainder); idx >= 0 {
		entry.Title = strings.TrimSpace(remainder[idx+1:])
		remainder = remainder[:idx]
	}

	for _, match := range attrRegex.FindAllStringSubmatch(remainder, -1) {
		key := strings.ToLower(match[1])
		value := match[2]
		if value == "" {
			value = match[3]
		}

		switch key {
		case "tvg-id":
			entry.TvgID = value
		case "tvg-name":
			entry.TvgName = value
		case "tvg-logo":
			entry.TvgLogo = value
		case "group-title":
			entry.GroupTitle = value
		case "tvg-chno":
			entry.ChannelNumber = value
		default:
			entry.Extra[key] = value
		}
	}

	return entry, nil
}

// titleComma finds the comma separating attributes from the display
// title, scanning backwards so commas inside quoted values are ignored.
func titleComma(s string) int {
	inQuotes := false
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '"' {
			inQuotes = !inQuotes
		}
		if s[i] == ',' && !inQuotes {
			return i
		}
	}
	return -1
}

func (p *Parser) reportError(lineNum int, err error) {
	if p.OnError != nil {
		p.OnError(lineNum, err)
	}
}
