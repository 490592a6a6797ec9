package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nexconsult/recibo-api/internal/utils"
)

type obstacleMarker struct {
	kind     ObstacleKind
	selector string
}

// Widget and iframe signatures of the challenge providers in use.
var obstacleMarkers = []obstacleMarker{
	{ObstacleRecaptcha, `iframe[src*="recaptcha" i]`},
	{ObstacleRecaptcha, `iframe[title*="recaptcha" i]`},
	{ObstacleRecaptcha, ".g-recaptcha"},
	{ObstacleHCaptcha, `iframe[src*="hcaptcha" i]`},
	{ObstacleHCaptcha, ".h-captcha"},
	{ObstacleTurnstile, ".cf-turnstile"},
	{ObstacleTurnstile, `iframe[src*="challenges.cloudflare.com" i]`},
	{ObstacleCloudflare, "#challenge-form"},
	{ObstacleCloudflare, "#cf-challenge-running"},
	{ObstacleCaptcha, "[data-sitekey]"},
}

var robotPhrases = []string{
	"no soy un robot",
	"i'm not a robot",
	"i am not a robot",
}

// ObstacleDetector looks for CAPTCHA markers on the loaded page.
type ObstacleDetector struct {
	page Page
}

// NewObstacleDetector creates a detector for page.
func NewObstacleDetector(page Page) *ObstacleDetector {
	return &ObstacleDetector{page: page}
}

// Detect inspects the top-level document once.
func (d *ObstacleDetector) Detect(ctx context.Context) (ObstacleKind, bool, error) {
	html, err := d.page.HTML(ctx, "")
	if err != nil {
		return "", false, err
	}
	kind, found, err := DetectObstacle(html)
	return kind, found, err
}

// DetectObstacle scans markup for challenge widgets and visible
// "I'm not a robot" text.
func DetectObstacle(html string) (ObstacleKind, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse page markup: %w", err)
	}

	for _, m := range obstacleMarkers {
		if doc.Find(m.selector).Length() > 0 {
			return m.kind, true, nil
		}
	}

	doc.Find("script, style, noscript, template").Remove()
	text := utils.NormalizeText(doc.Find("body").Text())
	for _, phrase := range robotPhrases {
		if strings.Contains(text, phrase) {
			return ObstacleRobotCheck, true, nil
		}
	}
	return "", false, nil
}
