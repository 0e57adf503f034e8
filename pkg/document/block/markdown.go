package block

import (
	"regexp"
	"sort"
	"strings"
)

// Inline patterns in priority order. A match overlapping one already
// accepted is dropped.
var inlinePatterns = []struct {
	re     *regexp.Regexp
	format Format
}{
	{regexp.MustCompile(`\*\*\*(.+?)\*\*\*`), FormatBold | FormatItalic},
	{regexp.MustCompile(`\*\*(.+?)\*\*`), FormatBold},
	{regexp.MustCompile(`\*(.+?)\*`), FormatItalic},
	{regexp.MustCompile(`~~(.+?)~~`), FormatStrikethrough},
	{regexp.MustCompile("`(.+?)`"), FormatCode},
}

type inlineMatch struct {
	start, end int
	text       string
	format     Format
}

// ParseMarkdownFormatting splits text into segments covering all of it,
// turning inline emphasis markers into format bits.
func ParseMarkdownFormatting(text string) []Segment {
	if text == "" {
		return []Segment{{Text: ""}}
	}

	var matches []inlineMatch
	overlaps := func(start, end int) bool {
		for _, m := range matches {
			if start < m.end && m.start < end {
				return true
			}
		}
		return false
	}

	for _, p := range inlinePatterns {
		for pos := 0; pos < len(text); {
			loc := p.re.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				break
			}
			start, end := pos+loc[0], pos+loc[1]
			if overlaps(start, end) {
				// Retry past the rejected opening marker.
				pos = start + 1
				continue
			}
			matches = append(matches, inlineMatch{
				start:  start,
				end:    end,
				text:   text[pos+loc[2] : pos+loc[3]],
				format: p.format,
			})
			pos = end
		}
	}

	if len(matches) == 0 {
		return []Segment{{Text: text}}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].start < matches[j].start
	})

	var (
		segments []Segment
		pos      int
	)
	for _, m := range matches {
		if m.start > pos {
			segments = append(segments, Segment{Text: text[pos:m.start]})
		}
		segments = append(segments, Segment{Text: m.text, Format: m.format})
		pos = m.end
	}
	if pos < len(text) {
		segments = append(segments, Segment{Text: text[pos:]})
	}
	return segments
}

var (
	headingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	bulletLineRe  = regexp.MustCompile(`^[-*+]\s+(.*)$`)
	numberLineRe  = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)

	blockHeadingRe = regexp.MustCompile(`(?m)^\s*#{1,6}\s+\S`)
	blockBulletRe  = regexp.MustCompile(`(?m)^\s*[-*+]\s+\S`)
	blockNumberRe  = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	blankLineRe    = regexp.MustCompile(`\n[ \t]*\n`)
)

// ContainsBlockLevelMarkdown reports whether text holds a heading, a list
// line or several paragraphs.
func ContainsBlockLevelMarkdown(text string) bool {
	if blockHeadingRe.MatchString(text) || blockBulletRe.MatchString(text) || blockNumberRe.MatchString(text) {
		return true
	}
	return blankLineRe.MatchString(strings.TrimSpace(text))
}

type parseState int

const (
	stateNone parseState = iota
	stateParagraph
	stateBulletList
	stateNumberList
)

// ParseMarkdownToBlocks decomposes text into heading, paragraph and list
// blocks, line by line.
func ParseMarkdownToBlocks(text string) []Block {
	var (
		blocks  []Block
		state   = stateNone
		pending []string
	)

	flush := func() {
		if len(pending) > 0 {
			source := Source(strings.Join(pending, "\n"))
			switch state {
			case stateParagraph:
				blocks = append(blocks, Block{Type: TypeParagraph, Source: source})
			case stateBulletList:
				blocks = append(blocks, Block{Type: TypeList, Source: source, Metadata: map[string]any{"list_type": "bullet"}})
			case stateNumberList:
				blocks = append(blocks, Block{Type: TypeList, Source: source, Metadata: map[string]any{"list_type": "number"}})
			}
		}
		state = stateNone
		pending = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			continue
		}

		if m := headingLineRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			blocks = append(blocks, Block{
				Type:     TypeHeading,
				Source:   Source(strings.TrimSpace(m[2])),
				Metadata: map[string]any{"level": len(m[1])},
			})
			continue
		}

		if m := bulletLineRe.FindStringSubmatch(trimmed); m != nil {
			if state != stateBulletList {
				flush()
				state = stateBulletList
			}
			pending = append(pending, m[1])
			continue
		}

		if m := numberLineRe.FindStringSubmatch(trimmed); m != nil {
			if state != stateNumberList {
				flush()
				state = stateNumberList
			}
			pending = append(pending, m[1])
			continue
		}

		if state != stateParagraph {
			flush()
			state = stateParagraph
		}
		pending = append(pending, trimmed)
	}
	flush()

	return blocks
}
