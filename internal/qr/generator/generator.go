package generator

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const imageSize = 256

// Generator renders redemption tokens into scannable PNG images. The token
// itself is the entire payload; possession of the image is possession of
// the credential.
type Generator struct {
	level qrcode.RecoveryLevel
}

func New() *Generator {
	return &Generator{level: qrcode.Medium}
}

func (g *Generator) RenderToken(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("cannot render an empty token")
	}
	return qrcode.Encode(token, g.level, imageSize)
}
