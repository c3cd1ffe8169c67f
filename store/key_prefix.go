package store

// Declare database key prefix for objects
const (
	PrefixAccount = "account:"

	PrefixBlock         = "blk:"
	PrefixBlockChildren = "blk_children:"
	PrefixBlockMeta     = "blk_meta:"

	BlockMetaKeyLatestStored = "latest_stored"
	BlockMetaKeyLatestRooted = "latest_rooted"

	PrefixTxMeta = "tx_meta:"
)
