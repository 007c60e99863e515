/*
Package transport moves Station messages over TCP.

Every message travels on its own connection: the peer dials, writes one
(optionally encrypted) line and closes. Inbound envelopes are
source:destination:namespace:payload; outbound ones are
destination:source:payload.

Components:
  - Server: accept loop with a connection cap and an inbound rate limit
  - Sender: non-blocking outbound queue guarded by a circuit breaker
  - FileSender: header-image transfers framed as kind:name:size
  - Cipher: Plain or SecretBox
*/
package transport
