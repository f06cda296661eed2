package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/compressedheaders/internal/crypto"
)

const genesisResponse = `{"result":{"hash":"000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",` +
	`"confirmations":467930,"height":0,"version":1,"versionHex":"00000001",` +
	`"merkleroot":"4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b",` +
	`"time":1231006505,"mediantime":1231006505,"nonce":2083236893,"bits":"1d00ffff","difficulty":1,` +
	`"chainwork":"0000000000000000000000000000000000000000000000000000000100010001",` +
	`"nextblockhash":"00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048"},"error":null,"id":1}`

func genesisRPC(t *testing.T) *BlockHeaderRPC {
	var env struct {
		Result BlockHeaderRPC `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(genesisResponse), &env))
	return &env.Result
}

func TestToHeaderGenesis(t *testing.T) {
	res := genesisRPC(t)
	assert.False(t, res.AtTip())

	h, err := res.ToHeader()
	require.NoError(t, err)

	assert.True(t, h.IsGenesis())
	assert.Equal(t, [4]byte{1, 0, 0, 0}, h.Version)
	assert.Equal(t, uint32(0x1d00ffff), h.TargetBits())
	assert.Equal(t, res.Hash, crypto.DisplayHex(crypto.HashBlockHeader(&h)))

	next, err := res.Next()
	require.NoError(t, err)
	assert.Equal(t, res.NextBlockHash, next.String())
}

func TestToHeaderRejectsMalformedHex(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *BlockHeaderRPC)
	}{
		{"odd merkle root", func(r *BlockHeaderRPC) { r.MerkleRoot = r.MerkleRoot[1:] }},
		{"non hex bits", func(r *BlockHeaderRPC) { r.Bits = "1d00fffz" }},
		{"short version", func(r *BlockHeaderRPC) { r.VersionHex = "01" }},
		{"long prev hash", func(r *BlockHeaderRPC) { r.PreviousBlockHash = r.Hash + "00" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := genesisRPC(t)
			tt.mutate(res)
			_, err := res.ToHeader()
			assert.ErrorIs(t, err, crypto.ErrInvalidHex)
		})
	}
}

func TestFromHeaderInvertsToHeader(t *testing.T) {
	res := genesisRPC(t)
	h, err := res.ToHeader()
	require.NoError(t, err)

	next, err := res.Next()
	require.NoError(t, err)

	back := FromHeader(&h, 0, &next)
	assert.Equal(t, res.Hash, back.Hash)
	assert.Equal(t, res.VersionHex, back.VersionHex)
	assert.Equal(t, res.Bits, back.Bits)
	assert.Equal(t, res.MerkleRoot, back.MerkleRoot)
	assert.Equal(t, res.Nonce, back.Nonce)
	assert.Equal(t, res.Version, back.Version)
	assert.Empty(t, back.PreviousBlockHash)
	assert.Equal(t, res.NextBlockHash, back.NextBlockHash)

	tip := FromHeader(&h, 0, nil)
	assert.True(t, tip.AtTip())
}

func newNode(t *testing.T, handler func(method string, params []string) string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []string        `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + handler(req.Method, req.Params) + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientGetBlockHeader(t *testing.T) {
	res := genesisRPC(t)
	body, err := json.Marshal(res)
	require.NoError(t, err)

	var gotMethod string
	var gotParams []string
	srv := newNode(t, func(method string, params []string) string {
		gotMethod, gotParams = method, params
		return string(body)
	})

	ctx := context.Background()
	c, err := NewClient(ctx, Credentials{Host: srv.URL, Username: "alice", Password: "secret"}, time.Second)
	require.NoError(t, err)
	defer c.Close()

	hash := crypto.MustHashFromDisplay(res.Hash)
	out, err := c.GetBlockHeader(ctx, hash)
	require.NoError(t, err)

	assert.Equal(t, "getblockheader", gotMethod)
	assert.Equal(t, []string{res.Hash}, gotParams)
	assert.Equal(t, res, out)
}

func TestClientRejectsWrongHeader(t *testing.T) {
	res := genesisRPC(t)
	body, err := json.Marshal(res)
	require.NoError(t, err)

	srv := newNode(t, func(string, []string) string { return string(body) })

	ctx := context.Background()
	c, err := NewClient(ctx, Credentials{Host: srv.URL, Username: "alice", Password: "secret"}, time.Second)
	require.NoError(t, err)
	defer c.Close()

	other := crypto.MustHashFromDisplay(res.NextBlockHash)
	_, err = c.GetBlockHeader(ctx, other)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientAuthFailure(t *testing.T) {
	srv := newNode(t, func(string, []string) string { return "null" })

	ctx := context.Background()
	c, err := NewClient(ctx, Credentials{Host: srv.URL, Username: "mallory"}, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetBlockHeader(ctx, crypto.MustHashFromDisplay(genesisRPC(t).Hash))
	assert.Error(t, err)
}
