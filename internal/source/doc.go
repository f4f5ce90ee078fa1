// Package source acquires daily foreign-flow windows for the analyzer.
//
// Upstreams:
//
//   - RTIClient: the RTI JSON API (per-symbol ForeignFlow and the market
//     TopForeignFlow list), rate limited and behind a circuit breaker.
//   - StockbitClient: the public chart endpoint. Prices and volume only, so
//     its windows carry zero foreign values. Also serves liquidity estimates.
//   - RTIScraper: the RTI foreign table HTML page, one trading day per page,
//     parsed with goquery. Pages can be fetched over plain HTTP or through a
//     headless browser when the table is rendered client-side.
//   - CSVSource: offline windows loaded from a CSV file.
//
// FallbackSource combines a primary and a secondary window source the same
// way the bot always has: the primary wins when it returns at least
// max(5, days/2) rows. Prefetch fans the fetches out over a bounded errgroup
// and stores the results in a MemorySource so the analyzer itself never
// touches the network.
package source
