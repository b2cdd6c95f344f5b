// Package seeder generates synthetic capture traffic for development and
// demo environments.
package seeder

import (
	"encoding/base64"
	"fmt"
	"math/rand"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/driftline-systems/driftline/internal/models"
)

var geoHints = []string{"", "us-east", "us-west", "eu-west", "ap-south"}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"de-DE,de;q=0.9,en;q=0.6",
	"fr-FR,fr;q=0.9",
	"es-ES,es;q=0.9,en;q=0.5",
}

// session is one simulated visitor; repeated captures reuse its key so the
// engine exercises sticky assignment.
type session struct {
	key      string
	geo      string
	ua       string
	language string
}

func newSession() *session {
	return &session{
		key:      gofakeit.UUID(),
		geo:      geoHints[rand.Intn(len(geoHints))],
		ua:       gofakeit.UserAgent(),
		language: acceptLanguages[rand.Intn(len(acceptLanguages))],
	}
}

// capture builds one capture request for this session.
func (s *session) capture() *models.CaptureRequest {
	material := fmt.Sprintf("%s:%s:%s:%s",
		gofakeit.Username(),
		gofakeit.Password(true, true, true, true, false, 16),
		gofakeit.DomainName(),
		gofakeit.UUID(),
	)

	return &models.CaptureRequest{
		SessionKey: s.key,
		GeoHint:    s.geo,
		Payload:    base64.StdEncoding.EncodeToString([]byte(material)),
		Device: models.DeviceSignatureInput{
			UserAgent:      s.ua,
			AcceptLanguage: s.language,
		},
	}
}
