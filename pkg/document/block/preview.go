package block

import (
	"fmt"
	"path"
	"strings"

	"github.com/buger/jsonparser"
)

const (
	previewLength         = 40
	equationPreviewLength = 20
)

// GeneratePreview returns a short, type-specific summary of b.
func GeneratePreview(b Block) string {
	source := string(b.Source)

	switch b.Type {
	case TypeHorizontalRule:
		return ""

	case TypeYouTube:
		id := b.MetaString("video_id")
		if id == "" {
			id = source
		}
		return truncate("youtu.be/"+id, previewLength)

	case TypeExcalidraw:
		data := b.MetaString("data")
		if data == "" {
			data = source
		}
		return truncate(summarizeExcalidraw([]byte(data)), previewLength)

	case TypeTable:
		rows, _ := b.MetaInt("rows")
		columns, _ := b.MetaInt("columns")
		return fmt.Sprintf("%d×%d table", rows, columns)

	case TypeEquation:
		equation := b.MetaString("equation")
		if equation == "" {
			equation = source
		}
		equation = truncate(equation, equationPreviewLength)
		if inline, _ := b.MetaBool("inline"); inline {
			return "$" + equation + "$"
		}
		return "$$" + equation + "$$"

	case TypeImage:
		label := b.MetaString("alt_text")
		if label == "" {
			if src := b.MetaString("src"); src != "" {
				label = path.Base(src)
			}
		}
		return truncate(label, previewLength)

	case TypeCollapsible:
		return truncate(source, previewLength)

	case TypeList:
		var items []string
		for _, line := range strings.Split(source, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				items = append(items, line)
			}
		}
		return truncate(strings.Join(items, ", "), previewLength)

	case TypeCode, TypeJupyterCell:
		firstLine, _, _ := strings.Cut(source, "\n")
		return truncate(firstLine, previewLength)
	}

	return truncate(source, previewLength)
}

// truncate shortens s to limit runes, the last three being "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// summarizeExcalidraw describes a scene by its element counts and first
// text, e.g. "2 rectangle, 1 text: Hello".
func summarizeExcalidraw(data []byte) string {
	var (
		order     []string
		counts    = make(map[string]int)
		firstText string
	)

	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		if deleted, err := jsonparser.GetBoolean(value, "isDeleted"); err == nil && deleted {
			return
		}
		typ, err := jsonparser.GetString(value, "type")
		if err != nil || typ == "" {
			return
		}
		if counts[typ] == 0 {
			order = append(order, typ)
		}
		counts[typ]++
		if typ == "text" && firstText == "" {
			firstText, _ = jsonparser.GetString(value, "text")
		}
	}, "elements")
	if err != nil || len(order) == 0 {
		return "empty drawing"
	}

	parts := make([]string, 0, len(order))
	for _, typ := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[typ], typ))
	}
	summary := strings.Join(parts, ", ")
	if firstText = strings.TrimSpace(firstText); firstText != "" {
		summary += ": " + firstText
	}
	return summary
}
