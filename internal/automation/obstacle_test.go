package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectObstacle(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		found bool
		kind  ObstacleKind
	}{
		{
			name:  "recaptcha iframe",
			html:  `<html><body><form><iframe src="https://www.google.com/recaptcha/api2/anchor?k=x"></iframe></form></body></html>`,
			found: true,
			kind:  ObstacleRecaptcha,
		},
		{
			name:  "recaptcha widget",
			html:  `<html><body><div class="g-recaptcha" data-sitekey="abc"></div></body></html>`,
			found: true,
			kind:  ObstacleRecaptcha,
		},
		{
			name:  "hcaptcha widget",
			html:  `<html><body><div class="h-captcha"></div></body></html>`,
			found: true,
			kind:  ObstacleHCaptcha,
		},
		{
			name:  "turnstile",
			html:  `<html><body><div class="cf-turnstile"></div></body></html>`,
			found: true,
			kind:  ObstacleTurnstile,
		},
		{
			name:  "cloudflare interstitial",
			html:  `<html><body><form id="challenge-form"></form></body></html>`,
			found: true,
			kind:  ObstacleCloudflare,
		},
		{
			name:  "generic sitekey",
			html:  `<html><body><div id="captcha" data-sitekey="k"></div></body></html>`,
			found: true,
			kind:  ObstacleCaptcha,
		},
		{
			name:  "spanish robot text",
			html:  `<html><body><label>No   soy un ROBOT</label></body></html>`,
			found: true,
			kind:  ObstacleRobotCheck,
		},
		{
			name:  "english robot text with typographic apostrophe",
			html:  `<html><body><span>I’m not a robot</span></body></html>`,
			found: true,
			kind:  ObstacleRobotCheck,
		},
		{
			name:  "phrase only inside script",
			html:  `<html><body><script>var msg = "no soy un robot";</script><p>Descarga tu recibo</p></body></html>`,
			found: false,
		},
		{
			name:  "clean form",
			html:  `<html><body><form><input name="numeroCliente"><button>Consultar</button></form></body></html>`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, found, err := DetectObstacle(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.kind, kind)
			}
		})
	}
}
