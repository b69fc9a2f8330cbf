package redis

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func atoiPort(t *testing.T, p string) int {
	t.Helper()
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}
