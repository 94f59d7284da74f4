package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const evmSecurityFixture = `{
  "code": 1,
  "message": "OK",
  "result": {
    "0x5cba0b7b488633cde1a57b8b406a7a7310d2993e": {
      "is_honeypot": "0",
      "is_mintable": "1",
      "can_take_back_ownership": "0",
      "owner_change_balance": "0",
      "hidden_owner": "1",
      "selfdestruct": "0",
      "external_call": "0",
      "is_open_source": "1",
      "buy_tax": "0.03",
      "sell_tax": "0.1",
      "holder_count": "1523",
      "lp_holder_count": "12"
    }
  }
}`

func TestGoPlusTokenSecurityEVM(t *testing.T) {
	var gotPath, gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAddress = r.URL.Query().Get("contract_addresses")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(evmSecurityFixture))
	}))
	defer srv.Close()

	client := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())

	sec, err := client.TokenSecurity(context.Background(), "ethereum", evmAddr)
	require.NoError(t, err)
	require.Equal(t, "/token_security/1", gotPath)
	require.Equal(t, evmAddr, gotAddress)

	require.False(t, sec.Honeypot)
	require.True(t, sec.Mintable)
	require.True(t, sec.HiddenOwner)
	require.False(t, sec.OwnershipReclaimable)
	require.True(t, sec.OpenSource)
	require.InDelta(t, 3.0, sec.BuyTaxPct, 1e-9, "vendor fractions normalise to percent")
	require.InDelta(t, 10.0, sec.SellTaxPct, 1e-9)
	require.EqualValues(t, 1523, sec.HolderCount)
	require.EqualValues(t, 12, sec.LPHolderCount)
}

func TestGoPlusChecksummedAddressFallsBackToLowercase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(evmSecurityFixture))
	}))
	defer srv.Close()

	client := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())

	checksummed := "0x5CBA0B7B488633CDE1A57B8B406A7A7310D2993E"
	sec, err := client.TokenSecurity(context.Background(), "ethereum", checksummed)
	require.NoError(t, err)
	require.True(t, sec.Mintable)
}

func TestGoPlusSolanaEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{
		  "code": 1,
		  "result": {
		    "` + solAddr + `": {"is_honeypot": "1", "is_mintable": "0"}
		  }
		}`))
	}))
	defer srv.Close()

	client := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())

	sec, err := client.TokenSecurity(context.Background(), "solana", solAddr)
	require.NoError(t, err)
	require.Equal(t, "/solana/token_security", gotPath)
	require.True(t, sec.Honeypot, "solana results keep base58 casing")
	require.Equal(t, 0, Score(sec))
}

func TestGoPlusAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 4022, "message": "chain not supported"}`))
	}))
	defer srv.Close()

	client := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())

	_, err := client.TokenSecurity(context.Background(), "ethereum", evmAddr)
	require.Error(t, err)
	require.Contains(t, err.Error(), "4022")
	require.Contains(t, err.Error(), "chain not supported")
}

func TestGoPlusMissingResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 1, "result": {}}`))
	}))
	defer srv.Close()

	client := NewGoPlus(GoPlusOptions{BaseURL: srv.URL}, zerolog.Nop())

	_, err := client.TokenSecurity(context.Background(), "ethereum", evmAddr)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no security result")
}
