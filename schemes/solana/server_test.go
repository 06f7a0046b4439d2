package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-labs/x402-go"
)

func TestServerSchemeParsePrice(t *testing.T) {
	s := ServerScheme{}
	amount, err := s.ParsePrice("$2.50", "solana")
	require.NoError(t, err)
	assert.Equal(t, "2500000", amount.Amount)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", amount.Asset)
}

func TestServerSchemeParsePriceUnsupportedNetwork(t *testing.T) {
	s := ServerScheme{}
	_, err := s.ParsePrice("$1.00", "solana-testnet")
	require.Error(t, err)
	var xerr *x402.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, x402.UnsupportedNetwork, xerr.Code)
}

func TestServerSchemeEnhanceRequirementAttachesDecimalsAndFeePayer(t *testing.T) {
	s := ServerScheme{}
	req := x402.PaymentRequirements{Network: "solana", Asset: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}
	supported := x402.SupportedKind{Extra: map[string]interface{}{"feePayer": "0xFeePayer"}}

	enhanced := s.EnhanceRequirement(req, supported)
	assert.Equal(t, float64(6), enhanced.Extra["decimals"])
	assert.Equal(t, "0xFeePayer", enhanced.Extra["feePayer"])
}

func TestServerSchemeEnhanceRequirementNoFeePayer(t *testing.T) {
	s := ServerScheme{}
	req := x402.PaymentRequirements{Network: "solana", Asset: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}
	enhanced := s.EnhanceRequirement(req, x402.SupportedKind{})
	_, hasFeePayer := enhanced.Extra["feePayer"]
	assert.False(t, hasFeePayer)
}
