package cards

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer turns a template asset plus assembled content into an encoded
// image payload.
type Renderer interface {
	Render(ctx context.Context, asset *TemplateAsset, content CardContent) ([]byte, error)
}

type chromeRenderer struct {
	logger  *slog.Logger
	timeout time.Duration
}

func NewChromeRenderer(timeout time.Duration) Renderer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := &chromeRenderer{
		logger:  slog.With(slog.String("service", "card_renderer")),
		timeout: timeout,
	}

	r.testChromedpAvailability()

	return r
}

func (r *chromeRenderer) testChromedpAvailability() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chromedpCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	err := chromedp.Run(chromedpCtx, chromedp.Navigate("data:text/html,<html><body>test</body></html>"))
	if err != nil {
		r.logger.Error("chromedp not available - card rendering will fail",
			slog.String("error", err.Error()))
	} else {
		r.logger.Info("chromedp is available and working")
	}
}

func (r *chromeRenderer) Render(ctx context.Context, asset *TemplateAsset, content CardContent) ([]byte, error) {
	start := time.Now()

	htmlContent, err := r.generateHTML(asset, content)
	if err != nil {
		return nil, fmt.Errorf("failed to generate card HTML: %w", err)
	}

	chromedpCtx, cancel := chromedp.NewContext(ctx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancel()

	chromedpCtx, cancel = context.WithTimeout(chromedpCtx, r.timeout)
	defer cancel()

	var imageBytes []byte

	err = chromedp.Run(chromedpCtx,
		chromedp.EmulateViewport(int64(asset.Width), int64(asset.Height)),
		chromedp.Navigate("data:text/html,"+htmlContent),
		chromedp.WaitVisible("#card-container", chromedp.ByID),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.Screenshot("#card-container", &imageBytes, chromedp.ByID),
	)

	if err != nil {
		r.logger.Error("Failed to render card with chromedp",
			slog.String("template", string(asset.Kind)),
			slog.String("platform", string(asset.Platform)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("failed to render card: %w", err)
	}

	r.logger.Info("Card rendered",
		slog.String("template", string(asset.Kind)),
		slog.String("platform", string(asset.Platform)),
		slog.Int("image_size", len(imageBytes)),
		slog.Duration("elapsed", time.Since(start)))

	return imageBytes, nil
}

func (r *chromeRenderer) generateHTML(asset *TemplateAsset, content CardContent) (string, error) {
	data := struct {
		Width, Height int
		Palette       Palette
		Font          string
		Content       CardContent
	}{
		Width:   asset.Width,
		Height:  asset.Height,
		Palette: asset.Palette,
		Font:    asset.Font,
		Content: content,
	}

	var buf bytes.Buffer
	if err := asset.Template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute card template: %w", err)
	}

	// Data URLs choke on raw # and newlines
	htmlContent := strings.ReplaceAll(buf.String(), "#", "%23")
	htmlContent = strings.ReplaceAll(htmlContent, "\n", "")

	return htmlContent, nil
}
