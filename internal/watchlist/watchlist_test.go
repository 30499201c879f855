package watchlist

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Parse("   \n\t")
		require.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("single", func(t *testing.T) {
		w, err := Parse("0x0000000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Equal(t, []common.Address{common.HexToAddress("0x1")}, w.Addresses())
	})

	t.Run("commas, whitespace and duplicates", func(t *testing.T) {
		w, err := Parse("0x0000000000000000000000000000000000000002, 0x0000000000000000000000000000000000000001\n0x0000000000000000000000000000000000000002")
		require.NoError(t, err)
		assert.Equal(t, []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}, w.Addresses())
	})

	t.Run("mixed case collapses", func(t *testing.T) {
		w, err := Parse("0x6cC148A7aDbc2EFadDED8e0E9A86f6FAF3678CbA;0x6cc148a7adbc2efadded8e0e9a86f6faf3678cba")
		require.NoError(t, err)
		assert.Equal(t, 1, w.Len())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Parse("0x0000000000000000000000000000000000000001,0xnotanaddress")
		require.ErrorIs(t, err, ErrInvalidWallet)
		assert.Contains(t, err.Error(), "entry 2")
	})

	t.Run("missing separator", func(t *testing.T) {
		// Two addresses glued together must not silently become one.
		_, err := Parse("0x0e066ed845a6853557a0d580b3ba998b0283aca80xceef7ce2af5e1a85afd6e4c48b9f01fc328d1af8")
		require.ErrorIs(t, err, ErrInvalidWallet)
	})
}

func TestNew(t *testing.T) {
	t.Run("empty is an error", func(t *testing.T) {
		_, err := New(nil)
		require.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		a := common.HexToAddress("0xabc")
		w, err := New([]common.Address{a, a, a})
		require.NoError(t, err)
		assert.Equal(t, 1, w.Len())
	})

	t.Run("addresses sorted", func(t *testing.T) {
		w, err := New([]common.Address{common.HexToAddress("0x3"), common.HexToAddress("0x1"), common.HexToAddress("0x2")})
		require.NoError(t, err)
		assert.Equal(t, []common.Address{
			common.HexToAddress("0x1"),
			common.HexToAddress("0x2"),
			common.HexToAddress("0x3"),
		}, w.Addresses())
	})
}

func TestResolve(t *testing.T) {
	sender := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	receiver := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	other := common.HexToAddress("0x00000000000000000000000000000000000000c3")

	w, err := New([]common.Address{sender, receiver})
	require.NoError(t, err)

	tests := []struct {
		name   string
		from   common.Address
		to     *common.Address
		want   common.Address
		wantOK bool
	}{
		{name: "sender watched", from: sender, to: &other, want: sender, wantOK: true},
		{name: "receiver watched", from: other, to: &receiver, want: receiver, wantOK: true},
		{name: "both watched resolves to sender", from: sender, to: &receiver, want: sender, wantOK: true},
		{name: "contract creation from watched", from: sender, to: nil, want: sender, wantOK: true},
		{name: "contract creation unwatched", from: other, to: nil, wantOK: false},
		{name: "neither watched", from: other, to: &other, wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := w.Resolve(tc.from, tc.to)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestParseIsCaseInsensitive(t *testing.T) {
	w, err := Parse("0xEF7C11B7B19A0BAE61C3DBB4DE7DD043AAF1D7DE")
	require.NoError(t, err)

	assert.True(t, w.Contains(common.HexToAddress("0xef7c11b7b19a0bae61c3dbb4de7dd043aaf1d7de")))
	assert.Equal(t, "0xef7c11b7b19a0bae61c3dbb4de7dd043aaf1d7de", w.String())
}
