package archival

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/mezonai/mmn-replay/block"
)

// Client talks to an archive server over JSON-RPC 2.0 on HTTP.
type Client struct {
	ch  *jhttp.Channel
	cli *jrpc2.Client
}

func NewClient(url string) *Client {
	ch := jhttp.NewChannel(url, nil)
	return &Client{
		ch:  ch,
		cli: jrpc2.NewClient(ch, nil),
	}
}

// UploadBatch sends one batch of blocks. Re-uploading archived slots
// is a no-op success on the server.
func (c *Client) UploadBatch(ctx context.Context, blocks []*block.Block) (accepted, alreadyPresent int, err error) {
	var resp uploadBatchResponse
	if err := c.cli.CallResult(ctx, "Archive.UploadBatch", uploadBatchParams{Blocks: blocks}, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Accepted, resp.AlreadyPresent, nil
}

// GetRange fetches archived blocks with from <= slot <= to.
func (c *Client) GetRange(ctx context.Context, from, to uint64) ([]*block.Block, error) {
	var resp getRangeResponse
	if err := c.cli.CallResult(ctx, "Archive.GetRange", getRangeParams{FromSlot: from, ToSlot: to}, &resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

// Head reports the highest archived slot and total block count.
func (c *Client) Head(ctx context.Context) (uint64, uint64, error) {
	var resp headResponse
	if err := c.cli.CallResult(ctx, "Archive.Head", nil, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Slot, resp.Count, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}
