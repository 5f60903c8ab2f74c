package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PixKeyType enumerates the key formats accepted by the Pix network.
type PixKeyType string

const (
	PixKeyTypeEmail PixKeyType = "EMAIL"
	PixKeyTypePhone PixKeyType = "PHONE"
	PixKeyTypeCPF   PixKeyType = "CPF"
	PixKeyTypeCNPJ  PixKeyType = "CNPJ"
	PixKeyTypeEVP   PixKeyType = "EVP"
)

// ParsePixKeyType maps a wire value to a PixKeyType, case-insensitively.
func ParsePixKeyType(s string) (PixKeyType, error) {
	switch PixKeyType(strings.ToUpper(s)) {
	case PixKeyTypeEmail:
		return PixKeyTypeEmail, nil
	case PixKeyTypePhone:
		return PixKeyTypePhone, nil
	case PixKeyTypeCPF:
		return PixKeyTypeCPF, nil
	case PixKeyTypeCNPJ:
		return PixKeyTypeCNPJ, nil
	case PixKeyTypeEVP:
		return PixKeyTypeEVP, nil
	default:
		return "", ErrUnknownKeyType
	}
}

var (
	emailKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_+&*-]+(?:\.[a-zA-Z0-9_+&*-]+)*@(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,7}$`)
	phoneKeyPattern = regexp.MustCompile(`^\+55[1-9][0-9]{10}$`)
	evpKeyPattern   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	nonDigitPattern = regexp.MustCompile(`\D`)
)

// ValidatePixKeyValue checks value against the format rules of keyType.
// CPF and CNPJ are validated on digit count after stripping separators,
// and sequences of a single repeated digit are rejected.
func ValidatePixKeyValue(value string, keyType PixKeyType) error {
	if strings.TrimSpace(value) == "" {
		return ErrKeyValueEmpty
	}
	switch keyType {
	case PixKeyTypeEmail:
		if !emailKeyPattern.MatchString(value) {
			return ErrInvalidKeyValue
		}
	case PixKeyTypePhone:
		if !phoneKeyPattern.MatchString(value) {
			return ErrInvalidKeyValue
		}
	case PixKeyTypeCPF:
		digits := nonDigitPattern.ReplaceAllString(value, "")
		if len(digits) != 11 || allSameDigit(digits) {
			return ErrInvalidKeyValue
		}
	case PixKeyTypeCNPJ:
		digits := nonDigitPattern.ReplaceAllString(value, "")
		if len(digits) != 14 || allSameDigit(digits) {
			return ErrInvalidKeyValue
		}
	case PixKeyTypeEVP:
		if !evpKeyPattern.MatchString(value) {
			return ErrInvalidKeyValue
		}
	default:
		return ErrUnknownKeyType
	}
	return nil
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return len(s) > 0
}

// PixKey is an alias registered against a wallet. At most one active
// key may exist per (value, type) pair across all wallets; inactive
// rows are kept for audit.
type PixKey struct {
	ID        uuid.UUID  `json:"id"`
	WalletID  uuid.UUID  `json:"walletId"`
	KeyValue  string     `json:"keyValue"`
	KeyType   PixKeyType `json:"keyType"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewPixKey validates and builds an active key for walletID.
func NewPixKey(walletID uuid.UUID, value string, keyType PixKeyType, now time.Time) (*PixKey, error) {
	if walletID == uuid.Nil {
		return nil, ErrMissingWalletID
	}
	if err := ValidatePixKeyValue(value, keyType); err != nil {
		return nil, err
	}
	return &PixKey{
		ID:        uuid.New(),
		WalletID:  walletID,
		KeyValue:  value,
		KeyType:   keyType,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// Deactivate releases the key so its (value, type) pair can be
// registered again by another wallet.
func (k *PixKey) Deactivate() {
	k.Active = false
}
