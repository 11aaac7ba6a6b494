package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

// Verifier проверяет HMAC-SHA256 подписи входящих webhook. Секреты задаются
// на провайдера; отсутствие секрета трактуется как отказ (fail closed),
// а не как пропуск проверки.
type Verifier struct {
	secrets map[string]string
}

// NewVerifier создаёт verifier с картой provider -> shared secret.
func NewVerifier(secrets map[string]string) *Verifier {
	copied := make(map[string]string, len(secrets))
	for provider, secret := range secrets {
		copied[strings.ToLower(provider)] = secret
	}
	return &Verifier{secrets: copied}
}

// Verify сверяет подпись с HMAC-SHA256 от тела уведомления. Сравнение
// выполняется за константное время. Принимается hex-подпись, опционально
// с префиксом "sha256=".
func (v *Verifier) Verify(provider string, body []byte, signature string) error {
	secret, ok := v.secrets[strings.ToLower(provider)]
	if !ok || secret == "" {
		return domain.ErrSecretNotConfigured
	}

	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// Sign возвращает hex-подпись тела для провайдера; используется тестами
// и утилитами повторной отправки.
func (v *Verifier) Sign(provider string, body []byte) (string, error) {
	secret, ok := v.secrets[strings.ToLower(provider)]
	if !ok || secret == "" {
		return "", domain.ErrSecretNotConfigured
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
