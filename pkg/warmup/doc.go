// Package warmup fetches a fixed manifest of shell assets with bounded
// concurrency, all or nothing.
//
// Example usage:
//
//	fetcher := warmup.NewFetcher(http.DefaultTransport, warmup.DefaultConfig())
//	entries, err := fetcher.FetchAll(ctx, []string{
//		"https://papers.example.com/",
//		"https://papers.example.com/app.js",
//	})
//
// The fetcher:
//   - Spawns at most MaxConcurrency fetches at a time
//   - Bounds every fetch by Timeout (headers and body)
//   - Treats any transport error or non-2xx status as a failure
//   - Cancels outstanding fetches on the first failure and returns it
//   - Returns entries in manifest order on success
package warmup
