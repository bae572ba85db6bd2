package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"caseline/internal/domain"
)

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand(domain.ActionRegisterPayment, []byte(`{"channel":"transfer","amount":"120.50","paid_on":"2026-03-01"}`))
	require.NoError(t, err)
	pay, ok := cmd.(RegisterPayment)
	require.True(t, ok)
	require.True(t, pay.Amount.Equal(decimal.RequireFromString("120.5")))
	require.Equal(t, "2026-03-01", pay.PaidOn)

	cmd, err = DecodeCommand(domain.ActionClose, nil)
	require.NoError(t, err)
	require.Equal(t, Close{}, cmd)

	_, err = DecodeCommand(domain.ActionAssignManager, []byte(`{"person":"x"}`))
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "payload", ve.Field)

	_, err = DecodeCommand("PROMOTE", nil)
	require.ErrorAs(t, err, &ve)
}

func TestDecodeOverride(t *testing.T) {
	cmd, err := DecodeCommand(domain.ActionOverride, []byte(`{"justification":"typo","action":"EDIT_DATA","payload":{"attention_place":"Lima"}}`))
	require.NoError(t, err)
	ov, ok := cmd.(Override)
	require.True(t, ok)
	require.Equal(t, "typo", ov.Justification)
	edit, ok := ov.Target.(EditData)
	require.True(t, ok)
	require.Equal(t, "Lima", *edit.AttentionPlace)

	_, err = DecodeCommand(domain.ActionOverride, []byte(`{"justification":"x","action":"ASSIGN_MANAGER","payload":{"person_id":"p"}}`))
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "action", ve.Field)

	_, err = DecodeCommand(domain.ActionOverride, []byte(`{"justification":"x","action":"OVERRIDE"}`))
	require.ErrorAs(t, err, &ve)
}
