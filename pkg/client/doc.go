// Package client is the disco Go SDK.
//
// A Client wraps a Network, the transport to a node. Two are provided: the
// REST API (NewHTTP) and gRPC with the cramberry codec (DialGRPC).
//
// # Creating an entry
//
// SignAndBroadcast fetches the sender's chain id and next sequence, builds
// and signs the envelope with the wallet, and waits for the commit:
//
//	kr, _ := wallet.FromSecret(secret, 1)
//	accts, _ := kr.Accounts()
//	from := accts[0].Address
//
//	c, _ := client.NewHTTP("http://localhost:8080")
//	res, err := c.SignAndBroadcast(ctx, kr, from, tx.Fee{Amount: 1},
//	    entry.NewMsgCreateEntry(from, "", "hello"),
//	)
//
// # Reading the outcome
//
// Errors fall into three buckets, see discoerrors.Classify:
//
//	switch discoerrors.Classify(err) {
//	case discoerrors.Happened:
//	    // res.Succeeded() says whether the messages were applied.
//	case discoerrors.DidNotHappen:
//	    // rejected before or at intake; safe to rebuild and retry.
//	case discoerrors.Unknown:
//	    // e.g. a timeout; settle it with c.TxStatus(ctx, res.TxHash).
//	}
//
// A rejected or timed-out broadcast still returns a BroadcastResult carrying
// the transaction hash.
//
// # Querying
//
// ListEntries returns one page; QueryEntryAll follows the cursor to the end:
//
//	all, err := c.QueryEntryAll(ctx, client.QueryOptions{Limit: 100})
//
// Set MinHeight to the height of a committed broadcast to read your own
// writes; a node that is behind answers with a *discoerrors.StaleReadError.
package client
