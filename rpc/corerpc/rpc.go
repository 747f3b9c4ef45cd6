// Package corerpc polls a Bitcoin Core node's JSON-RPC interface for the
// current mempool and chain height, producing mempool.MempoolTx values.
package corerpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/zkao/btc-congestion-manager/mempool"
)

// Config is the node connection config, read from the rpc section of the
// daemon's yaml config.
type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout is the HTTP client timeout, in seconds.
	Timeout int `yaml:"timeout"`

	// Spelling biases which descendant-field spelling PollMempool tries
	// first when resolving a mempool entry's package size/fees; both are
	// always accepted, this only breaks a tie (see mempool.FromRaw).
	Spelling mempool.DescendantSpelling `yaml:"descendantSpelling"`
}

type request struct {
	Jsonrpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	Id      int64       `json:"id"`
}

type response struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   interface{}     `json:"error"`
	Id      int64           `json:"id"`
}

// Client is a batched bitcoind JSON-RPC client.
type Client struct {
	currid     int64
	httpclient *http.Client
	cfg        Config

	parseErrors metrics.Counter
}

// NewClient returns a Client for the given node config. The
// mempool.parse_errors metric is registered (or retrieved, if already
// registered) in metrics.DefaultRegistry.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:         cfg,
		httpclient:  &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		parseErrors: metrics.GetOrRegisterCounter("mempool.parse_errors", metrics.DefaultRegistry),
	}
}

func (c *Client) newRequest(method string, params interface{}) *request {
	return &request{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
		Id:      atomic.AddInt64(&c.currid, 1),
	}
}

// ParseErrors returns the running count of mempool entries skipped for
// being malformed, per the daemon's error-counting policy.
func (c *Client) ParseErrors() int64 {
	return c.parseErrors.Count()
}

// PollMempool issues a single batched [getrawmempool(true), getblockcount]
// request, per collect/corerpc/rpc.go's pollMempool, and decodes the
// result into MempoolTx values. Malformed entries are skipped and counted
// rather than failing the whole poll.
func (c *Client) PollMempool() (height int64, txs []mempool.MempoolTx, err error) {
	reqs := []*request{
		c.newRequest("getrawmempool", []bool{true}),
		c.newRequest("getblockcount", nil),
	}
	resp, err := c.sendBatch(reqs)
	if err != nil {
		return 0, nil, err
	}

	var raw map[string]mempool.RawMempoolEntry
	if err := json.Unmarshal(resp[0], &raw); err != nil {
		return 0, nil, fmt.Errorf("corerpc: decoding getrawmempool result: %w", err)
	}
	if err := json.Unmarshal(resp[1], &height); err != nil {
		return 0, nil, fmt.Errorf("corerpc: decoding getblockcount result: %w", err)
	}

	txs = make([]mempool.MempoolTx, 0, len(raw))
	for txid, e := range raw {
		tx, err := mempool.FromRaw(txid, e, c.cfg.Spelling)
		if err != nil {
			c.parseErrors.Inc(1)
			continue
		}
		txs = append(txs, tx)
	}
	return height, txs, nil
}

// BlockHash returns the hex-encoded block hash at height.
func (c *Client) BlockHash(height int64) (string, error) {
	req := c.newRequest("getblockhash", []int64{height})
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	var hash string
	err = json.Unmarshal(resp, &hash)
	return hash, err
}

// blockResult is the wire shape of a getblock(hash, verbose) response,
// trimmed to the block's height, weight and confirmed txids. The mined
// pipeline in App does not call GetBlock; it classifies mined events from
// the size of diff.Result's Removed set alone.
type blockResult struct {
	Height int64    `json:"height"`
	Weight int64    `json:"weight"`
	Txids  []string `json:"tx"`
}

// Block is a decoded getblock response.
type Block struct {
	Height int64
	Size   int64 // virtual size, i.e. weight / 4
	Txids  []string
}

// GetBlock fetches the block at height, including its txid list.
func (c *Client) GetBlock(height int64) (Block, error) {
	hash, err := c.BlockHash(height)
	if err != nil {
		return Block{}, err
	}
	req := c.newRequest("getblock", []interface{}{hash, true})
	resp, err := c.send(req)
	if err != nil {
		return Block{}, err
	}
	var b blockResult
	if err := json.Unmarshal(resp, &b); err != nil {
		return Block{}, fmt.Errorf("corerpc: decoding getblock result: %w", err)
	}
	return Block{Height: b.Height, Size: b.Weight / 4, Txids: b.Txids}, nil
}

func (c *Client) send(req *request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	respbody, err := c.sendHTTP(body)
	if err != nil {
		return nil, err
	}
	var rpcresp response
	if err := json.Unmarshal(respbody, &rpcresp); err != nil {
		return nil, err
	}
	if rpcresp.Id != req.Id {
		return nil, fmt.Errorf("corerpc: mismatched RPC id")
	}
	if rpcresp.Error != nil {
		return nil, fmt.Errorf("corerpc: %v", rpcresp.Error)
	}
	return rpcresp.Result, nil
}

func (c *Client) sendBatch(reqs []*request) ([]json.RawMessage, error) {
	idlist := make([]int64, len(reqs))
	for i, r := range reqs {
		idlist[i] = r.Id
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	respbody, err := c.sendHTTP(body)
	if err != nil {
		return nil, err
	}

	resps := make([]response, len(reqs))
	if err := json.Unmarshal(respbody, &resps); err != nil {
		return nil, err
	}

	result := make([]json.RawMessage, len(reqs))
IDLoop:
	for i, id := range idlist {
		for _, r := range resps {
			if r.Id == id {
				if r.Error != nil {
					return nil, fmt.Errorf("corerpc: %v", r.Error)
				}
				result[i] = r.Result
				continue IDLoop
			}
		}
		return nil, fmt.Errorf("corerpc: unmatched req/resp ids")
	}
	return result, nil
}

func (c *Client) sendHTTP(body []byte) ([]byte, error) {
	url := "http://" + net.JoinHostPort(c.cfg.Host, c.cfg.Port)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("corerpc: %s: %s", resp.Status, b)
	}
	return b, nil
}
