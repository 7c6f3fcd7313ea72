// Package retrieval embeds the document retrieval pipeline in a Go program:
// chunking, embedding, vector storage, nearest-neighbor search and optional
// relevance refinement, without running the HTTP service.
//
// The caller supplies the embedding model through Encoder:
//
//	client, _ := retrieval.New(ctx,
//	    retrieval.WithBolt("data/chunks.db"),
//	    retrieval.WithEncoder(myEncoder),
//	)
//	defer client.Close()
//
//	ids, _ := client.Upsert(ctx, retrieval.Document{Text: "..."})
//	results, _ := client.Query(ctx, retrieval.Query{Text: "what changed?", TopK: 5})
//
// WithScorer enables the second ranking stage; WithLexicalScorer uses the
// built-in term overlap scorer.
package retrieval
