package truth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLiteral(t *testing.T) {
	tests := []struct {
		name    string
		literal Literal
		want    Value
	}{
		{name: "true", literal: LiteralTrue, want: True},
		{name: "false", literal: LiteralFalse, want: False},
		{name: "unknown", literal: LiteralUnknown, want: Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromLiteral(tt.literal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromLiteralRejectsOutOfRange(t *testing.T) {
	v, err := FromLiteral(Literal(42))
	require.ErrorIs(t, err, ErrUnknownLiteral)
	assert.Equal(t, Error, v)
	assert.Panics(t, func() { MustFromLiteral(Literal(7)) })
}

func TestParseLiteral(t *testing.T) {
	l, err := ParseLiteral(" Unknown ")
	require.NoError(t, err)
	assert.Equal(t, LiteralUnknown, l)

	_, err = ParseLiteral("error")
	assert.ErrorIs(t, err, ErrUnknownLiteral)
}

func TestValueModalities(t *testing.T) {
	assert.True(t, True.IsMust())
	assert.True(t, Error.IsMust())
	assert.False(t, Unknown.IsMust())
	assert.False(t, False.IsMust())

	assert.True(t, Unknown.IsMay())
	assert.True(t, True.IsMay())
	assert.False(t, False.IsMay())
}

func TestValueText(t *testing.T) {
	for _, v := range Values {
		text, err := v.MarshalText()
		require.NoError(t, err)

		var back Value
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, v, back)
	}

	_, err := Value(9).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, "truth.Value(9)", Value(9).String())
}

func TestValueConstant(t *testing.T) {
	assert.Equal(t, "/unknown", Unknown.Name())
	assert.Equal(t, "/true", True.Constant().Symbol)
	assert.Equal(t, "/error", Value(200).Constant().Symbol)
}
