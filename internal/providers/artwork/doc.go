/*
Package artwork downloads Steam header images the local Steam client has
not cached.

Requests go through a resty client backed by go-retryablehttp, so 5xx
responses and dropped connections are retried with backoff. A rate
limiter and a circuit breaker keep a Station from hammering the CDN when
the venue network is down. Downloads land in a cache directory and are
served from there afterwards.
*/
package artwork
