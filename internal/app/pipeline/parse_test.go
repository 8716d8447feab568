package pipeline

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	cases := []struct {
		name   string
		hint   string
		raw    string
		values []Value
		bad    []string
	}{
		{name: "single value", raw: "23.5", values: []Value{{DefaultChannel, 23.5}}},
		{name: "single value with hint", hint: "temp", raw: "23.5", values: []Value{{"temp", 23.5}}},
		{name: "positional", raw: "23.5,44.0", values: []Value{{"p0", 23.5}, {"p1", 44}}},
		{name: "positional with hint", hint: "imu", raw: "0.1, -0.2 ,0.3", values: []Value{{"imu.p0", 0.1}, {"imu.p1", -0.2}, {"imu.p2", 0.3}}},
		{name: "partial failure", raw: "23.5,abc", values: []Value{{"p0", 23.5}}, bad: []string{"p1"}},
		{name: "outlier kept", hint: "temp", raw: "9999", values: []Value{{"temp", 9999}}},
		{name: "trailing nul", hint: "temp", raw: "24.1\x00\x00", values: []Value{{"temp", 24.1}}},
		{name: "not finite", raw: "NaN,Inf,1", values: []Value{{"p2", 1}}, bad: []string{"p0", "p1"}},
		{name: "empty field", raw: "1,,2", values: []Value{{"p0", 1}, {"p2", 2}}, bad: []string{"p1"}},
		{name: "blank", raw: "   "},
		{name: "invalid utf8", raw: "\xff\xfe"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, bad := ParsePayload(tc.hint, []byte(tc.raw))
			if tc.values == nil {
				require.Empty(t, values)
			} else {
				require.Equal(t, tc.values, values)
			}
			var badIDs []string
			for _, te := range bad {
				badIDs = append(badIDs, te.ChannelID)
			}
			require.Equal(t, tc.bad, badIDs)
		})
	}
}

func TestTokenErrorUnwrapsSyntaxError(t *testing.T) {
	_, bad := ParsePayload("", []byte("1,abc"))
	require.Len(t, bad, 1)
	require.Equal(t, 1, bad[0].Index)
	require.Equal(t, "abc", bad[0].Token)
	require.True(t, errors.Is(bad[0], strconv.ErrSyntax))
}

func TestChannelFor(t *testing.T) {
	require.Equal(t, "default", ChannelFor("", 0, 1))
	require.Equal(t, "hum", ChannelFor("hum", 0, 1))
	require.Equal(t, "p3", ChannelFor("", 3, 4))
	require.Equal(t, "imu.p3", ChannelFor("imu", 3, 4))
}
