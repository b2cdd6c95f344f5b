package capture

import (
	"errors"
	"strings"

	"github.com/mssola/useragent"

	"github.com/driftline-systems/driftline/internal/models"
)

var errEmptyUserAgent = errors.New("empty user agent")

// parseDeviceSignature validates the raw client fingerprint against the fixed
// schema and normalizes it. The user agent must be present and parseable into
// at least a browser or OS family; anything else is malformed input.
func parseDeviceSignature(in models.DeviceSignatureInput) (models.DeviceSignature, error) {
	raw := strings.TrimSpace(in.UserAgent)
	if raw == "" {
		return models.DeviceSignature{}, errEmptyUserAgent
	}

	ua := useragent.New(raw)
	browser, version := ua.Browser()

	sig := models.DeviceSignature{
		UserAgent:      raw,
		Browser:        browser,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
		AcceptLanguage: strings.TrimSpace(in.AcceptLanguage),
	}

	if sig.Browser == "" && sig.OS == "" {
		return models.DeviceSignature{}, errors.New("unrecognized user agent")
	}
	return sig, nil
}
