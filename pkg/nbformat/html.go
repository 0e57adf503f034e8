package nbformat

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
)

var (
	htmlOnce      sync.Once
	htmlPolicy    *bluemonday.Policy
	htmlConverter *converter.Converter
)

func initHTML() {
	htmlPolicy = bluemonday.UGCPolicy()
	htmlConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// HTMLToText sanitises kernel-produced html and renders it as markdown.
func HTMLToText(html string) (string, error) {
	htmlOnce.Do(initHTML)

	clean := htmlPolicy.Sanitize(html)
	md, err := htmlConverter.ConvertString(clean)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert html output")
	}
	return strings.TrimSpace(md), nil
}
