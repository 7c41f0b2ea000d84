/*
Bot implements the per-strategy runtime.

# Module
  - declarations: static per-type subscription tables, composed across an
    explicit ancestor chain at construction time
  - subscriptions: listener registry keyed by event kind, and by
    (resolution, depth) for derived candles
  - runtime: binds one strategy instance to one instrument, maintains
    latest-value snapshots and owns the candle aggregator and the order
    ledger

# Source
 1. live market data from the dispatch supervisor
 2. replayed market data from the historical cursor

# Produce
  - handler invocations into strategy code
  - order calls into the ledger, issued by strategy code

# Sharded
  - strategy instance + instrument
*/
package bot
