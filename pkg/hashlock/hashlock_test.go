package hashlock_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

func TestOracle(t *testing.T) {
	tests := []struct {
		name         string
		expectedHash string
	}{
		{
			name:         hashlock.Sha256,
			expectedHash: "66687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a591d0d5f2925",
		},
		{
			name:         hashlock.Keccak256,
			expectedHash: "290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563",
		},
	}

	secret := make([]byte, hashlock.SecretSize)

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			oracle, err := hashlock.NewOracle(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.name, oracle.Name())

			hash := oracle.Hash(secret)
			require.Equal(t, tt.expectedHash, hex.EncodeToString(hash))
			require.True(t, oracle.Verify(secret, hash))

			wrong := make([]byte, hashlock.SecretSize)
			wrong[0] = 1
			require.False(t, oracle.Verify(wrong, hash))
			require.False(t, oracle.Verify(secret[:16], hash))
			require.False(t, oracle.Verify(secret, nil))
		})
	}
}

func TestUnsupportedOracle(t *testing.T) {
	_, err := hashlock.NewOracle("md5")
	require.Error(t, err)
}

func TestNewSecret(t *testing.T) {
	s1, err := hashlock.NewSecret()
	require.NoError(t, err)
	require.Len(t, s1, hashlock.SecretSize)

	s2, err := hashlock.NewSecret()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)
}
