package causal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremor/pkg/contracts/domain"
)

func referenceEdges() []domain.GrangerEdge {
	return []domain.GrangerEdge{
		{Cause: "d_fed_funds", Effect: "d_treasury_10y", FStatistic: 8.4, PValue: 0.004, Lag: 1},
		{Cause: "d_fed_funds", Effect: "d_credit_spread", FStatistic: 5.1, PValue: 0.02, Lag: 2},
		{Cause: "d_treasury_10y", Effect: "sp500_ret", FStatistic: 4.7, PValue: 0.03, Lag: 1},
		{Cause: "d_vix", Effect: "sp500_ret", FStatistic: 12.9, PValue: 0.001, Lag: 1},
		{Cause: "sp500_ret", Effect: "d_vix", FStatistic: 9.2, PValue: 0.003, Lag: 1},
		{Cause: "d_credit_spread", Effect: "sp500_ret", FStatistic: 6.3, PValue: 0.012, Lag: 2},
	}
}

func TestNetwork_Downstream(t *testing.T) {
	network := NewNetwork(referenceEdges())

	t.Run("direct successors in insertion order", func(t *testing.T) {
		assert.Equal(t, []string{"d_treasury_10y", "d_credit_spread"}, network.Downstream("d_fed_funds"))
	})

	t.Run("one hop only", func(t *testing.T) {
		// d_fed_funds reaches sp500_ret in two hops; Downstream must not.
		assert.NotContains(t, network.Downstream("d_fed_funds"), "sp500_ret")
	})

	t.Run("unknown node yields empty, not error", func(t *testing.T) {
		assert.Empty(t, network.Downstream("d_oil"))
	})

	t.Run("cycles are valid", func(t *testing.T) {
		// VIX and equities Granger-cause each other.
		assert.Contains(t, network.Downstream("d_vix"), "sp500_ret")
		assert.Contains(t, network.Downstream("sp500_ret"), "d_vix")
	})
}

func TestNetwork_Upstream(t *testing.T) {
	network := NewNetwork(referenceEdges())
	assert.Equal(t, []string{"d_treasury_10y", "d_vix", "sp500_ret", "d_credit_spread"}, network.Upstream("sp500_ret"))
	assert.Empty(t, network.Upstream("d_fed_funds"))
}

func TestNetwork_Edge(t *testing.T) {
	network := NewNetwork(referenceEdges())

	meta, ok := network.Edge("d_fed_funds", "d_treasury_10y")
	require.True(t, ok)
	assert.Equal(t, 8.4, meta.FStatistic)
	assert.Equal(t, 0.004, meta.PValue)
	assert.Equal(t, 1, meta.Lag)

	_, ok = network.Edge("d_treasury_10y", "d_fed_funds")
	assert.False(t, ok, "edges are directed")

	_, ok = network.Edge("d_oil", "sp500_ret")
	assert.False(t, ok)
}

func TestNetwork_DuplicateEdgeLaterRowWins(t *testing.T) {
	network := NewNetwork([]domain.GrangerEdge{
		{Cause: "a", Effect: "b", FStatistic: 1, PValue: 0.5, Lag: 1},
		{Cause: "a", Effect: "b", FStatistic: 9, PValue: 0.01, Lag: 3},
	})

	assert.Equal(t, 1, network.NumEdges())
	meta, ok := network.Edge("a", "b")
	require.True(t, ok)
	assert.Equal(t, 9.0, meta.FStatistic)
	assert.Equal(t, 3, meta.Lag)
	assert.Equal(t, []string{"b"}, network.Downstream("a"))
}

func TestNetwork_SelfLoopKept(t *testing.T) {
	network := NewNetwork([]domain.GrangerEdge{
		{Cause: "d_vix", Effect: "d_vix", FStatistic: 3.3, PValue: 0.05, Lag: 1},
	})
	assert.Contains(t, network.Downstream("d_vix"), "d_vix")
}

func TestLoadNetworkCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "granger_results.csv")
	csv := "cause,effect,f_statistic,p_value,lag\n" +
		"d_fed_funds,d_treasury_10y,8.4,0.004,1\n" +
		"d_vix,sp500_ret,12.9,0.001,1\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	network, err := LoadNetworkCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, network.NumEdges())
	assert.ElementsMatch(t, []string{"d_fed_funds", "d_treasury_10y", "d_vix", "sp500_ret"}, network.Nodes())

	meta, ok := network.Edge("d_vix", "sp500_ret")
	require.True(t, ok)
	assert.Equal(t, 0.001, meta.PValue)
}

func TestLoadNetworkCSV_MissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("source,target\na,b\n"), 0o644))

	_, err := LoadNetworkCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cause")
}
