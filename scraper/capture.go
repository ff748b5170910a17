package scraper

import (
	"context"
	"encoding/base64"
	"net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// markdownConverter is goroutine-safe and shared by all scrapes.
//
//   - base plugin: strips script, style, iframe, noscript, head and comments.
//   - commonmark plugin: headings, lists, links, code blocks, emphasis.
//   - table plugin: keeps tabular data as tables with minimal padding.
var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(
			table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
		),
	),
)

// ToMarkdown converts an HTML snapshot to markdown. Relative links are
// resolved against pageURL.
func ToMarkdown(html, pageURL string) (string, error) {
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		return markdownConverter.ConvertString(html, converter.WithDomain(u.Scheme+"://"+u.Host))
	}
	return markdownConverter.ConvertString(html)
}

// capture collects the requested page artifacts. Any failure is fatal.
func (s *Scraper) capture(ctx context.Context, sess *Session, cfg *models.ScrapeConfig, pageURL string, obs observe.Observer) (models.Captures, error) {
	var out models.Captures
	page := sess.Page(ctx)

	if cfg.Screenshot {
		img, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return out, models.NewScrapeError(models.ErrCodeCapture, "failed to capture screenshot", err)
		}
		out.Screenshot = base64.StdEncoding.EncodeToString(img)
		observe.Debug(ctx, obs, observe.StageCapture, "screenshot captured", "bytes", len(img))
	}

	if cfg.HTMLSource || cfg.Markdown {
		html, err := page.HTML()
		if err != nil {
			return out, models.NewScrapeError(models.ErrCodeCapture, "failed to serialize page HTML", err)
		}
		if cfg.HTMLSource {
			out.HTMLSource = html
		}
		observe.Debug(ctx, obs, observe.StageCapture, "html captured", "bytes", len(html))

		if cfg.Markdown {
			md, err := ToMarkdown(html, pageURL)
			if err != nil {
				return out, models.NewScrapeError(models.ErrCodeCapture, "failed to convert HTML to markdown", err)
			}
			out.Markdown = md
		}
	}
	return out, nil
}
