package models

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neosample"
)

func lookup(_ context.Context, label string, ids []neosample.VertexID) (map[neosample.VertexID]neosample.GlobalID, error) {
	out := make(map[neosample.VertexID]neosample.GlobalID, len(ids))
	for _, id := range ids {
		out[id] = neosample.GlobalID{Label: label, Key: "k" + strconv.FormatInt(int64(id), 10)}
	}
	return out, nil
}

// sampled builds a one-hop subgraph: Customer 10 and 11 bought Product 1,
// Product 2 is an isolated seed. Only k1 has a price.
func sampled(t *testing.T, kind neosample.CollectorKind) *neosample.MaterializedSubgraph {
	t.Helper()
	c, err := neosample.NewCollector(kind)
	require.NoError(t, err)
	c.ResetSeeds(neosample.Frontier{"Product": {1, 2}})
	_, err = c.AddHop([]neosample.HopRecord{{
		Rows:     []neosample.VertexID{10, 11},
		Cols:     []neosample.VertexID{1, 1},
		EdgeIDs:  []int64{501, 502},
		SeedType: "Product", NbrType: "Customer", EdgeType: "BOUGHT",
	}})
	require.NoError(t, err)
	_, err = c.ToLocal(context.Background(), lookup)
	require.NoError(t, err)

	store := neosample.NewMemoryFeatureStore()
	store.Put("Product", "price", "k1", 9.5)
	view, err := neosample.NewFeatureView("Product", []string{"price"}, store)
	require.NoError(t, err)
	sub, err := c.AddFeatures(context.Background(), map[string]*neosample.FeatureView{"Product": view})
	require.NoError(t, err)
	return sub
}

func TestExportGraph(t *testing.T) {
	g := ExportGraph(sampled(t, neosample.CollectorHetero).Layer(0))

	require.Len(t, g.Nodes, 4)
	assert.Equal(t, "Customer/k10", g.Nodes[0].ID)
	assert.Equal(t, []string{"Customer"}, g.Nodes[0].Labels)
	assert.Empty(t, g.Nodes[0].Properties)
	assert.Equal(t, "Product/k1", g.Nodes[2].ID)
	assert.Equal(t, map[string]interface{}{"price": 9.5}, g.Nodes[2].Properties)
	assert.Empty(t, g.Nodes[3].Properties, "missing features are omitted")

	require.Len(t, g.Edges, 2)
	e := g.Edges[1]
	assert.Equal(t, "Customer/k11", e.Source)
	assert.Equal(t, "Product/k1", e.Target)
	assert.Equal(t, "BOUGHT", e.Type)
	assert.Equal(t, int64(502), e.Properties["edge_id"])
	assert.Equal(t, "Customer-[BOUGHT]->Product#1", e.ID)
}

func TestExportGraphNilLayer(t *testing.T) {
	g := ExportGraph(nil)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(data))
}

func TestExportSubgraph(t *testing.T) {
	assert.Nil(t, ExportSubgraph(nil))

	out := ExportSubgraph(sampled(t, neosample.CollectorBlocks))
	assert.Equal(t, "blocks", out.Kind)
	assert.Equal(t, 1, out.Hops)
	assert.Equal(t, map[string][]int{"Product": {0, 1}}, out.Seeds)
	require.Len(t, out.Layers, 1)

	layer := out.Layers[0]
	require.Len(t, layer.Vertices, 2)
	products := layer.Vertices[1]
	assert.Equal(t, "Product", products.Label)
	assert.Equal(t, []string{"k1", "k2"}, products.Keys)
	assert.Equal(t, 2, products.NumDst)
	require.Len(t, products.Features, 2)
	require.NotNil(t, products.Features[0][0])
	assert.Equal(t, 9.5, *products.Features[0][0])
	assert.Nil(t, products.Features[1][0])

	require.Len(t, layer.Edges, 1)
	assert.Equal(t, EdgeSet{
		Nbr: "Customer", Edge: "BOUGHT", Seed: "Product",
		Src: []int{0, 1}, Dst: []int{0, 0}, EdgeIDs: []int64{501, 502},
	}, layer.Edges[0])

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"features":[[9.5],[null]]`)
}
